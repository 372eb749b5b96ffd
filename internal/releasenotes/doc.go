// Package releasenotes turns two versions of a plain-text release-notes file
// into grouped, display-ready sections.
//
// The flow is DiffAdded → Classifier.Classify → Format. Each step is pure and
// works on whole texts held in memory.
package releasenotes
