package releasenotes

import (
	"strings"
	"time"
)

const headerDateLayout = "Jan 2 2006"

// Section is one non-empty category of a rendered document.
type Section struct {
	Category string
	Lines    []string
}

// FormattedNotes is the display model shared by both renderings.
type FormattedNotes struct {
	Header   string
	Sections []Section
}

// Format keeps the non-empty categories in declared order and stamps the
// header with now, e.g. "RELEASE NOTES - Jun 6 2023".
func Format(s *Sections, now time.Time) FormattedNotes {
	out := FormattedNotes{Header: "RELEASE NOTES - " + now.Format(headerDateLayout)}
	if s == nil {
		return out
	}
	for _, cat := range s.Categories() {
		lines := s.Lines(cat)
		if len(lines) == 0 {
			continue
		}
		out.Sections = append(out.Sections, Section{Category: cat, Lines: append([]string(nil), lines...)})
	}
	return out
}

// Rich renders chat markdown: a "#" header, bold headings and "- " bullets.
func (n FormattedNotes) Rich() string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(n.Header)
	b.WriteString("\n\n")
	for _, sec := range n.Sections {
		b.WriteString("**")
		b.WriteString(sec.Category)
		b.WriteString("**\n")
		for _, l := range sec.Lines {
			b.WriteString("- ")
			b.WriteString(l)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Plain renders the patch-notes record file: "*HEADING*" wrappers and the
// lines unprefixed.
func (n FormattedNotes) Plain() string {
	var b strings.Builder
	b.WriteString(n.Header)
	b.WriteString("\n\n")
	for _, sec := range n.Sections {
		b.WriteString("*")
		b.WriteString(sec.Category)
		b.WriteString("*\n")
		for _, l := range sec.Lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
