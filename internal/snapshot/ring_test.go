package snapshot

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "branchwatch/pkg/logx"
)

func download(t *testing.T, r *Ring, branchName, notes string) Generations {
	t.Helper()
	st, err := r.Stage(branchName)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(st.Dir, "_release_notes.txt"), []byte(notes), 0o644))
	g, err := r.Commit(st)
	require.NoError(t, err)
	return g
}

func TestRingKeepsTwoGenerations(t *testing.T) {
	r, err := NewRing(t.TempDir(), logx.Nop())
	require.NoError(t, err)

	g1 := download(t, r, "public", "v1")
	assert.False(t, g1.HasPrevious())

	g2 := download(t, r, "public", "v2")
	require.True(t, g2.HasPrevious())
	assert.Equal(t, g1.Current, g2.Previous)

	g3 := download(t, r, "public", "v3")
	assert.Equal(t, g2.Current, g3.Previous)
	_, err = os.Stat(g1.Current)
	assert.ErrorIs(t, err, fs.ErrNotExist, "oldest generation must be evicted")

	old, err := ReadFile(g3.Previous, "_release_notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", old)
	cur, err := ReadFile(g3.Current, "_release_notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "v3", cur)

	got, err := r.Generations("public")
	require.NoError(t, err)
	assert.Equal(t, g3, got)

	entries, err := os.ReadDir(filepath.Join(r.Root(), "public"))
	require.NoError(t, err)
	var dirs int
	for _, e := range entries {
		if e.IsDir() {
			dirs++
		}
	}
	assert.Equal(t, 2, dirs)
}

func TestRingAbortKeepsSlots(t *testing.T) {
	r, err := NewRing(t.TempDir(), logx.Nop())
	require.NoError(t, err)
	g1 := download(t, r, "beta", "v1")

	st, err := r.Stage("beta")
	require.NoError(t, err)
	require.NoError(t, r.Abort(st))

	got, err := r.Generations("beta")
	require.NoError(t, err)
	assert.Equal(t, g1, got)
	_, err = os.Stat(st.Dir)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestRingSweepRemovesOrphans(t *testing.T) {
	r, err := NewRing(t.TempDir(), logx.Nop())
	require.NoError(t, err)
	g := download(t, r, "public", "v1")

	orphan := filepath.Join(r.Root(), "public", "stage-crashed")
	require.NoError(t, os.Mkdir(orphan, 0o755))
	require.NoError(t, r.Sweep("public"))

	_, err = os.Stat(orphan)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = os.Stat(g.Current)
	assert.NoError(t, err)
}

func TestRingCommitConflicts(t *testing.T) {
	r, err := NewRing(t.TempDir(), logx.Nop())
	require.NoError(t, err)
	g1 := download(t, r, "public", "v1")

	st, err := r.Stage("public")
	require.NoError(t, err)
	target := filepath.Join(r.Root(), "public", "gen-"+strings.TrimPrefix(filepath.Base(st.Dir), "stage-"))
	require.NoError(t, os.Mkdir(target, 0o755))

	_, err = r.Commit(st)
	assert.ErrorIs(t, err, ErrConflict)

	got, err := r.Generations("public")
	require.NoError(t, err)
	assert.Equal(t, g1, got, "slots must not move on conflict")
	_, err = os.Stat(st.Dir)
	assert.NoError(t, err, "staging dir is left for the caller to abort")
	require.NoError(t, r.Abort(st))

	foreign := Staging{Branch: "public", Dir: filepath.Join(t.TempDir(), "stage-x")}
	_, err = r.Commit(foreign)
	assert.ErrorIs(t, err, ErrConflict)

	other, err := r.Stage("beta")
	require.NoError(t, err)
	_, err = r.Commit(Staging{Branch: "public", Dir: other.Dir})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRingRejectsBadBranchNames(t *testing.T) {
	r, err := NewRing(t.TempDir(), logx.Nop())
	require.NoError(t, err)
	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := r.Stage(name)
		assert.ErrorIs(t, err, ErrInvalidBranch, name)
	}
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile("", "x")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = ReadFile(t.TempDir(), "x")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestWritePatchNotesOverwrites(t *testing.T) {
	r, err := NewRing(t.TempDir(), logx.Nop())
	require.NoError(t, err)
	_, err = r.WritePatchNotes("public", "first")
	require.NoError(t, err)
	path, err := r.WritePatchNotes("public", "second")
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("1234"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("56"), 0o644))
	n, err := DirSize(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), n)
}
