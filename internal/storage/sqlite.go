package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"branchwatch/internal/branch"
	logx "branchwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// FULL: a returned PutBranch must survive a crash.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetBranch(ctx context.Context, name string) (branch.State, bool, error) {
	var st branch.State
	err := s.db.QueryRowContext(ctx,
		`SELECT build_id, last_updated FROM branches WHERE name = ?`, name,
	).Scan(&st.BuildID, &st.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return branch.State{}, false, nil
	}
	if err != nil {
		return branch.State{}, false, err
	}
	return st, true, nil
}

func (s *sqliteStore) PutBranch(ctx context.Context, name string, st branch.State) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branches(name, build_id, last_updated, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET build_id=excluded.build_id, last_updated=excluded.last_updated, updated_at=excluded.updated_at`,
		name, st.BuildID, st.LastUpdated, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) ListBranches(ctx context.Context) (map[string]branch.State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, build_id, last_updated FROM branches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]branch.State{}
	for rows.Next() {
		var (
			name string
			st   branch.State
		)
		if err := rows.Scan(&name, &st.BuildID, &st.LastUpdated); err != nil {
			return nil, err
		}
		out[name] = st
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendChange(ctx context.Context, rec ChangeRecord) error {
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO changes(at, branch, kind, previous_build_id, build_id, last_updated)
		 VALUES(?,?,?,?,?,?)`,
		rec.At.UTC().Format(time.RFC3339Nano), rec.Branch, rec.Kind, nullStr(rec.PreviousBuildID), rec.BuildID, rec.LastUpdated,
	)
	return err
}

func (s *sqliteStore) RecentChanges(ctx context.Context, limit int) ([]ChangeRecord, error) {
	if limit <= 0 {
		limit = fileHistoryMax
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, branch, kind, COALESCE(previous_build_id, ''), build_id, last_updated
		 FROM changes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChangeRecord
	for rows.Next() {
		var (
			at  string
			rec ChangeRecord
		)
		if err := rows.Scan(&at, &rec.Branch, &rec.Kind, &rec.PreviousBuildID, &rec.BuildID, &rec.LastUpdated); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
			rec.At = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
