// Package pipeline runs one polling pass: fetch branch metadata, detect
// changed builds, download them into the snapshot ring, diff the release
// notes against the previous download and enqueue notifications.
//
// Nothing in a pass is fatal to the process. A metadata failure aborts the
// pass; any per-branch failure skips that branch and the pass continues.
package pipeline
