package storage

import (
	"context"
	"errors"
	"time"

	"branchwatch/internal/branch"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (json snapshot + jsonl journal)
//   - "sqlite": SQLite database file
//   - "memory": process-local, nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ChangeRecord is one detected build change.
// Keep it compact and schema-stable.
type ChangeRecord struct {
	At              time.Time `json:"at"`
	Branch          string    `json:"branch"`
	Kind            string    `json:"kind"`
	PreviousBuildID string    `json:"previous_build_id,omitempty"`
	BuildID         string    `json:"build_id"`
	LastUpdated     int64     `json:"last_updated"`
}

// Store is the persistence API used by the tracker, pipeline and status server.
type Store interface {
	GetBranch(ctx context.Context, name string) (branch.State, bool, error)
	PutBranch(ctx context.Context, name string, st branch.State) error
	ListBranches(ctx context.Context) (map[string]branch.State, error)

	AppendChange(ctx context.Context, rec ChangeRecord) error
	// RecentChanges returns up to limit records, newest first.
	RecentChanges(ctx context.Context, limit int) ([]ChangeRecord, error)

	Close() error
}
