// Package branch tracks the last processed build of each distribution branch
// and decides whether a fresh observation is new, updated or unchanged.
package branch

// Record is one branch as reported by the update source on a single poll.
type Record struct {
	Name              string
	BuildID           string
	LastUpdated       int64 // unix seconds
	PasswordProtected bool
}

// State is what the store keeps per branch name.
type State struct {
	BuildID     string `json:"build_id"`
	LastUpdated int64  `json:"last_updated"`
}

type ChangeKind int

const (
	Unchanged ChangeKind = iota
	New
	Updated
)

func (k ChangeKind) String() string {
	switch k {
	case New:
		return "new"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ChangeResult is the outcome of Tracker.Evaluate.
// State is the observed state; Previous is nil unless Kind is Updated.
type ChangeResult struct {
	Kind     ChangeKind
	State    State
	Previous *State
}

// Changed reports whether the branch needs processing.
func (r ChangeResult) Changed() bool { return r.Kind != Unchanged }
