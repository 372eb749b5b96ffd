package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"branchwatch/internal/branch"
	logx "branchwatch/pkg/logx"
)

func openDrivers(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	open := func(cfg Config) func() Store {
		return func() Store {
			st, err := Open(cfg, logx.Nop())
			require.NoError(t, err)
			return st
		}
	}
	return map[string]func() Store{
		"file":   open(Config{Driver: "file", Path: filepath.Join(dir, "file", "state")}),
		"sqlite": open(Config{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "state.db"), BusyTimeout: time.Second}),
		"memory": open(Config{Driver: "memory"}),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, open := range openDrivers(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			st := open()
			defer st.Close()

			_, ok, err := st.GetBranch(ctx, "public")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.PutBranch(ctx, "public", branch.State{BuildID: "1", LastUpdated: 10}))
			require.NoError(t, st.PutBranch(ctx, "public", branch.State{BuildID: "2", LastUpdated: 20}))
			require.NoError(t, st.PutBranch(ctx, "noitabeta", branch.State{BuildID: "5", LastUpdated: 30}))

			got, ok, err := st.GetBranch(ctx, "public")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, branch.State{BuildID: "2", LastUpdated: 20}, got)

			all, err := st.ListBranches(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)

			for i, id := range []string{"1", "2", "3"} {
				require.NoError(t, st.AppendChange(ctx, ChangeRecord{
					At: time.Unix(int64(i), 0), Branch: "public", Kind: "updated", BuildID: id,
				}))
			}
			recent, err := st.RecentChanges(ctx, 2)
			require.NoError(t, err)
			require.Len(t, recent, 2)
			assert.Equal(t, "3", recent[0].BuildID)
			assert.Equal(t, "2", recent[1].BuildID)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state.json")}

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	for i := 0; i < fileCompactEvery+3; i++ {
		require.NoError(t, st.PutBranch(ctx, "public", branch.State{BuildID: "b", LastUpdated: int64(i)}))
	}
	require.NoError(t, st.AppendChange(ctx, ChangeRecord{Branch: "public", Kind: "new", BuildID: "b"}))
	require.NoError(t, st.Close())

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	got, ok, err := st.GetBranch(ctx, "public")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(fileCompactEvery+2), got.LastUpdated)

	recent, err := st.RecentChanges(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestFileStoreRecoversTornJournalTail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "state.json")}
	journal := filepath.Join(dir, "state.branches.journal.jsonl")
	changes := filepath.Join(dir, "state.changes.jsonl")
	require.NoError(t, os.WriteFile(journal, []byte(
		`{"name":"beta","state":{"build_id":"7","last_updated":3}}`+"\n"+
			`{"name":"public","state":{"build_id":"1","last_upd`), 0o600))
	require.NoError(t, os.WriteFile(changes, []byte(`{"branch":"pub`), 0o600))

	st, err := Open(cfg, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.PutBranch(ctx, "public", branch.State{BuildID: "2", LastUpdated: 5}))
	require.NoError(t, st.AppendChange(ctx, ChangeRecord{Branch: "public", Kind: "updated", BuildID: "2"}))
	require.NoError(t, st.Close())

	st, err = Open(cfg, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	got, ok, err := st.GetBranch(ctx, "public")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, branch.State{BuildID: "2", LastUpdated: 5}, got)

	beta, ok, err := st.GetBranch(ctx, "beta")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "7", beta.BuildID)

	recent, err := st.RecentChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "2", recent[0].BuildID)
}

func TestTrimTornTail(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]struct{ in, want string }{
		"clean":     {"a\nb\n", "a\nb\n"},
		"torn":      {"a\nb\nhal", "a\nb\n"},
		"no_lines":  {"half", ""},
		"empty":     {"", ""},
		"long_tail": {"a\n" + strings.Repeat("x", 10000), "a\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(p, []byte(tc.in), 0o600))
			require.NoError(t, trimTornTail(p))
			b, err := os.ReadFile(p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(b))
		})
	}
	assert.NoError(t, trimTornTail(filepath.Join(dir, "missing")))
}

func TestClosedStore(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Close())
	_, _, err := st.GetBranch(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
}
