package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"branchwatch/internal/branch"
	logx "branchwatch/pkg/logx"
)

const (
	fileCompactEvery = 200
	fileHistoryMax   = 500
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.branches.snapshot.json (periodic snapshot)
//   - <prefix>.branches.journal.jsonl (append-only journal, fsynced per write)
//   - <prefix>.changes.jsonl          (append-only change history)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	changesFile  *os.File

	branches map[string]branch.State
	history  []ChangeRecord // tail of changes.jsonl, oldest first

	writes int
}

type journalRecord struct {
	Name  string       `json:"name"`
	State branch.State `json:"state"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".branches.snapshot.json"
	journalPath := prefix + ".branches.journal.jsonl"
	changesPath := prefix + ".changes.jsonl"

	branches := map[string]branch.State{}
	if err := loadSnapshot(snapPath, branches); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("branch snapshot unreadable; relying on journal", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, branches); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	history, err := loadHistory(changesPath, fileHistoryMax)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("change history unreadable", logx.String("path", changesPath), logx.Err(err))
	}

	// A crash mid-append leaves a partial last line. Appending after it would
	// glue the next record onto garbage, so cut back to the last newline.
	for _, p := range []string{journalPath, changesPath} {
		if err := trimTornTail(p); err != nil {
			return nil, err
		}
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	cf, err := os.OpenFile(changesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("branches", len(branches)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		changesFile:  cf,
		branches:     branches,
		history:      history,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.journalFile != nil {
		err1 = s.journalFile.Close()
		s.journalFile = nil
	}
	if s.changesFile != nil {
		err2 = s.changesFile.Close()
		s.changesFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) GetBranch(ctx context.Context, name string) (branch.State, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return branch.State{}, false, ErrClosed
	}
	st, ok := s.branches[name]
	return st, ok, nil
}

func (s *fileStore) PutBranch(ctx context.Context, name string, st branch.State) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}

	if err := json.NewEncoder(s.journalFile).Encode(journalRecord{Name: name, State: st}); err != nil {
		return err
	}
	// The tracker treats a returned PutBranch as durable.
	if err := s.journalFile.Sync(); err != nil {
		return err
	}
	s.branches[name] = st

	s.writes++
	if s.writes%fileCompactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("branch journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) ListBranches(ctx context.Context) (map[string]branch.State, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrClosed
	}
	out := make(map[string]branch.State, len(s.branches))
	for k, v := range s.branches {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) AppendChange(ctx context.Context, rec ChangeRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changesFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.changesFile).Encode(rec); err != nil {
		return err
	}
	s.history = append(s.history, rec)
	if len(s.history) > fileHistoryMax {
		s.history = s.history[len(s.history)-fileHistoryMax:]
	}
	return nil
}

func (s *fileStore) RecentChanges(ctx context.Context, limit int) ([]ChangeRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changesFile == nil {
		return nil, ErrClosed
	}
	return newestFirst(s.history, limit), nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.branches); err != nil {
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
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]branch.State) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]branch.State
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]branch.State) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail after a crash
			continue
		}
		if r.Name == "" {
			continue
		}
		out[r.Name] = r.State
	}
	return sc.Err()
}

// trimTornTail truncates path after its last '\n'. Missing files are left
// alone.
func trimTornTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	end := fi.Size()
	buf := make([]byte, 4096)
	for off := end; off > 0; {
		n := int64(len(buf))
		if off < n {
			n = off
		}
		off -= n
		if _, err := f.ReadAt(buf[:n], off); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := off + int64(i) + 1
			if keep == end {
				return nil
			}
			return f.Truncate(keep)
		}
	}
	if end == 0 {
		return nil
	}
	return f.Truncate(0)
}

func loadHistory(path string, keep int) ([]ChangeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []ChangeRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r ChangeRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		out = append(out, r)
		if len(out) > keep*2 {
			out = append([]ChangeRecord(nil), out[len(out)-keep:]...)
		}
	}
	if len(out) > keep {
		out = out[len(out)-keep:]
	}
	return out, sc.Err()
}
