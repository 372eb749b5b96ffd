// Package snapshot keeps the two most recent downloads of each branch.
//
// Layout per branch:
//
//	<root>/<branch>/slots.json     {"current": "gen-…", "previous": "gen-…"}
//	<root>/<branch>/gen-<id>/      committed generations
//	<root>/<branch>/stage-<id>/    in-progress download
//	<root>/<branch>/patchnotes.txt last plain rendering
//
// slots.json is replaced with a rename, so after a crash it always names
// generations that were fully downloaded. Directories it does not name are
// garbage and are removed by Sweep.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	logx "branchwatch/pkg/logx"
)

var (
	// ErrConflict means a path the ring was about to create already exists,
	// or a staging directory does not belong to the branch being committed.
	ErrConflict = errors.New("snapshot: path conflict")
	// ErrInvalidBranch rejects branch names that would escape the root.
	ErrInvalidBranch = errors.New("snapshot: invalid branch name")
)

const (
	slotsFile      = "slots.json"
	patchNotesFile = "patchnotes.txt"
	genPrefix      = "gen-"
	stagePrefix    = "stage-"
)

type slots struct {
	Current  string `json:"current,omitempty"`
	Previous string `json:"previous,omitempty"`
}

// Generations are the resolved directories after a commit. Previous is empty
// when the branch has only one download.
type Generations struct {
	Current  string
	Previous string
}

// HasPrevious reports whether there is an older download to compare against.
func (g Generations) HasPrevious() bool { return g.Previous != "" }

// Staging is an empty directory a download should be written into.
type Staging struct {
	Branch string
	Dir    string
}

// Ring manages branch directories under a root.
type Ring struct {
	root string
	log  logx.Logger

	mu sync.Mutex
}

func NewRing(root string, log logx.Logger) (*Ring, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("snapshot: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create root: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ring{root: abs, log: log}, nil
}

// Root returns the absolute root directory.
func (r *Ring) Root() string { return r.root }

func (r *Ring) branchDir(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidBranch, name)
	}
	return filepath.Join(r.root, name), nil
}

// Stage sweeps stale directories and creates a fresh staging directory.
func (r *Ring) Stage(branchName string) (Staging, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.branchDir(branchName)
	if err != nil {
		return Staging{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Staging{}, err
	}
	if err := r.sweepLocked(dir); err != nil {
		r.log.Warn("sweep failed", logx.String("branch", branchName), logx.Err(err))
	}

	stage := filepath.Join(dir, stagePrefix+uuid.NewString())
	if err := os.Mkdir(stage, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Staging{}, fmt.Errorf("%w: %s", ErrConflict, stage)
		}
		return Staging{}, err
	}
	return Staging{Branch: branchName, Dir: stage}, nil
}

// Abort removes a staging directory that will not be committed.
func (r *Ring) Abort(st Staging) error {
	if st.Dir == "" {
		return nil
	}
	return os.RemoveAll(st.Dir)
}

// Commit promotes st to the current generation. The old current becomes
// previous and the old previous is deleted once the pointer swap is durable.
func (r *Ring) Commit(st Staging) (Generations, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.branchDir(st.Branch)
	if err != nil {
		return Generations{}, err
	}
	if filepath.Dir(st.Dir) != dir || !strings.HasPrefix(filepath.Base(st.Dir), stagePrefix) {
		return Generations{}, fmt.Errorf("%w: %s is not a staging dir of %q", ErrConflict, st.Dir, st.Branch)
	}

	old, err := readSlots(dir)
	if err != nil {
		return Generations{}, err
	}

	gen := genPrefix + strings.TrimPrefix(filepath.Base(st.Dir), stagePrefix)
	genDir := filepath.Join(dir, gen)
	if _, err := os.Lstat(genDir); err == nil {
		return Generations{}, fmt.Errorf("%w: %s", ErrConflict, genDir)
	}
	if err := os.Rename(st.Dir, genDir); err != nil {
		return Generations{}, err
	}

	next := slots{Current: gen, Previous: old.Current}
	if err := writeFileAtomic(filepath.Join(dir, slotsFile), mustJSON(next)); err != nil {
		return Generations{}, err
	}

	if old.Previous != "" && old.Previous != next.Current && old.Previous != next.Previous {
		if err := os.RemoveAll(filepath.Join(dir, old.Previous)); err != nil {
			r.log.Warn("evicted generation not removed", logx.String("branch", st.Branch), logx.String("gen", old.Previous), logx.Err(err))
		}
	}
	return resolve(dir, next), nil
}

// Generations returns the committed directories of a branch.
func (r *Ring) Generations(branchName string) (Generations, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, err := r.branchDir(branchName)
	if err != nil {
		return Generations{}, err
	}
	s, err := readSlots(dir)
	if err != nil {
		return Generations{}, err
	}
	return resolve(dir, s), nil
}

// Sweep removes generations and staging directories that slots.json does
// not reference.
func (r *Ring) Sweep(branchName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir, err := r.branchDir(branchName)
	if err != nil {
		return err
	}
	return r.sweepLocked(dir)
}

func (r *Ring) sweepLocked(dir string) error {
	s, err := readSlots(dir)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == s.Current || name == s.Previous {
			continue
		}
		if strings.HasPrefix(name, genPrefix) || strings.HasPrefix(name, stagePrefix) {
			r.log.Debug("removing stale snapshot dir", logx.String("dir", name))
			if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// WritePatchNotes atomically replaces the branch's patch-notes record.
func (r *Ring) WritePatchNotes(branchName, text string) (string, error) {
	dir, err := r.branchDir(branchName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, patchNotesFile)
	return path, writeFileAtomic(path, []byte(text))
}

// ReadFile reads name from a generation directory. A missing generation or
// file yields an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadFile(genDir, name string) (string, error) {
	if genDir == "" {
		return "", fs.ErrNotExist
	}
	b, err := os.ReadFile(filepath.Join(genDir, name))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DirSize sums regular file sizes below dir.
func DirSize(dir string) (uint64, error) {
	var total uint64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += uint64(info.Size())
		}
		return nil
	})
	return total, err
}

func resolve(dir string, s slots) Generations {
	var g Generations
	if s.Current != "" {
		g.Current = filepath.Join(dir, s.Current)
	}
	if s.Previous != "" {
		g.Previous = filepath.Join(dir, s.Previous)
	}
	return g
}

func readSlots(dir string) (slots, error) {
	b, err := os.ReadFile(filepath.Join(dir, slotsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return slots{}, nil
	}
	if err != nil {
		return slots{}, err
	}
	var s slots
	if err := json.Unmarshal(b, &s); err != nil {
		return slots{}, fmt.Errorf("snapshot: corrupt %s: %w", slotsFile, err)
	}
	return s, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
