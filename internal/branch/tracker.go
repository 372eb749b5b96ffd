package branch

import (
	"context"
	"fmt"
)

// StateStore is the slice of persistence the tracker needs.
type StateStore interface {
	GetBranch(ctx context.Context, name string) (State, bool, error)
	PutBranch(ctx context.Context, name string, st State) error
}

// Tracker compares observations against the store.
type Tracker struct {
	store StateStore
}

func NewTracker(store StateStore) *Tracker {
	return &Tracker{store: store}
}

// Evaluate classifies an observation and, when the build id differs from the
// stored one (or nothing is stored), persists the observation before
// returning. A changed lastUpdated alone is not a change.
func (t *Tracker) Evaluate(ctx context.Context, name, buildID string, lastUpdated int64) (ChangeResult, error) {
	observed := State{BuildID: buildID, LastUpdated: lastUpdated}

	stored, ok, err := t.store.GetBranch(ctx, name)
	if err != nil {
		return ChangeResult{}, fmt.Errorf("load branch %q: %w", name, err)
	}

	res := ChangeResult{Kind: New, State: observed}
	if ok {
		if stored.BuildID == buildID {
			return ChangeResult{Kind: Unchanged, State: stored}, nil
		}
		prev := stored
		res = ChangeResult{Kind: Updated, State: observed, Previous: &prev}
	}

	if err := t.store.PutBranch(ctx, name, observed); err != nil {
		return ChangeResult{}, fmt.Errorf("save branch %q: %w", name, err)
	}
	return res, nil
}
