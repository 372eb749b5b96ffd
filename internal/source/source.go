// Package source defines the update source the pipeline polls.
package source

import (
	"context"
	"errors"

	"branchwatch/internal/branch"
)

// ErrUnavailable wraps every metadata or download failure.
var ErrUnavailable = errors.New("update source unavailable")

// MaterializeOptions tunes a branch download.
type MaterializeOptions struct {
	// Beta selects a non-default branch; empty installs the default branch.
	Beta string
	// Validate re-checks installed files.
	Validate bool
}

// Source reports branch metadata and downloads branch content.
type Source interface {
	// FetchBranches returns every branch in the order the service lists them.
	FetchBranches(ctx context.Context, appID int) ([]branch.Record, error)
	// Materialize writes the full current contents of a branch into dest.
	Materialize(ctx context.Context, appID int, branchName, dest string, opt MaterializeOptions) error
}
