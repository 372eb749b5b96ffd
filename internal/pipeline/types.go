package pipeline

import "time"

type Config struct {
	AppID        int
	PublicBranch string
	BetaBranch   string
	NotesFile    string
	// NotifyOnBaseline sends a title-only message for a branch's first
	// download. Off by default: with nothing to compare there is no news.
	NotifyOnBaseline bool
	MaxMessageLength int
	Validate         bool
	// SkipDownload detects changes without downloading; changed branches get a
	// title-only message.
	SkipDownload bool
}

func (c Config) withDefaults() Config {
	if c.PublicBranch == "" {
		c.PublicBranch = "public"
	}
	if c.BetaBranch == "" {
		c.BetaBranch = "noitabeta"
	}
	if c.NotesFile == "" {
		c.NotesFile = "_release_notes.txt"
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 2000
	}
	return c
}

type Outcome string

const (
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeBaseline   Outcome = "baseline"
	OutcomeNotified   Outcome = "notified"
	OutcomeTitleOnly  Outcome = "title_only"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
)

// BranchReport is the result for one branch in one pass.
type BranchReport struct {
	Branch          string  `json:"branch"`
	Change          string  `json:"change"`
	BuildID         string  `json:"build_id"`
	PreviousBuildID string  `json:"previous_build_id,omitempty"`
	Locked          bool    `json:"locked,omitempty"`
	Outcome         Outcome `json:"outcome"`
	AddedLines      int     `json:"added_lines,omitempty"`
	Messages        int     `json:"messages,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type Report struct {
	RunID    string         `json:"run_id"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Branches []BranchReport `json:"branches"`
	Error    string         `json:"error,omitempty"`
}

// Changed counts branches whose build id moved this pass.
func (r Report) Changed() int {
	n := 0
	for _, b := range r.Branches {
		if b.Outcome != OutcomeUnchanged {
			n++
		}
	}
	return n
}
