package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"branchwatch/internal/branch"
	"branchwatch/internal/eventbus"
	"branchwatch/internal/releasenotes"
	"branchwatch/internal/snapshot"
	"branchwatch/internal/source"
	"branchwatch/internal/storage"
	kit "branchwatch/internal/transport"
	"branchwatch/pkg/chunk"
	logx "branchwatch/pkg/logx"
)

// Store is the persistence the pipeline writes to.
type Store interface {
	branch.StateStore
	AppendChange(ctx context.Context, rec storage.ChangeRecord) error
}

// Notifier accepts messages for asynchronous delivery.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

type Pipeline struct {
	src      source.Source
	store    Store
	tracker  *branch.Tracker
	ring     *snapshot.Ring
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger
	now      func() time.Time

	mu         sync.RWMutex
	cfg        Config
	classifier *releasenotes.Classifier
	last       *Report
}

type Option func(*Pipeline)

func WithBus(b eventbus.Bus) Option { return func(p *Pipeline) { p.bus = b } }

func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

func WithClassifier(c *releasenotes.Classifier) Option {
	return func(p *Pipeline) { p.classifier = c }
}

func New(cfg Config, src source.Source, store Store, ring *snapshot.Ring, n Notifier, log logx.Logger, opts ...Option) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		cfg:      cfg.withDefaults(),
		src:      src,
		store:    store,
		tracker:  branch.NewTracker(store),
		ring:     ring,
		notifier: n,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if p.classifier == nil {
		p.classifier = releasenotes.NewClassifier(releasenotes.DefaultRules, releasenotes.AllMatches)
	}
	return p
}

// Apply swaps configuration and classifier for subsequent passes. A nil
// classifier keeps the current one.
func (p *Pipeline) Apply(cfg Config, c *releasenotes.Classifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg.withDefaults()
	if c != nil {
		p.classifier = c
	}
}

// LastReport returns the most recent finished pass, if any.
func (p *Pipeline) LastReport() (Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// Poll runs one pass over every branch the source lists, in order.
func (p *Pipeline) Poll(ctx context.Context) (Report, error) {
	p.mu.RLock()
	cfg, cls := p.cfg, p.classifier
	p.mu.RUnlock()

	rep := Report{RunID: uuid.NewString(), Started: p.now()}
	log := p.log.With(logx.String("run", rep.RunID[:8]))

	defer func() {
		rep.Finished = p.now()
		p.mu.Lock()
		r := rep
		p.last = &r
		p.mu.Unlock()
		eventbus.Emit(p.bus, eventbus.PassCompleted, rep)
	}()

	records, err := p.src.FetchBranches(ctx, cfg.AppID)
	if err != nil {
		rep.Error = err.Error()
		log.Warn("branch fetch failed, pass aborted", logx.Err(err))
		return rep, fmt.Errorf("fetch branches: %w", err)
	}
	log.Debug("pass started", logx.Int("branches", len(records)))

	pass := &passState{cfg: cfg, classifier: cls, log: log}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			rep.Error = err.Error()
			return rep, err
		}
		br := p.processBranch(ctx, pass, rec)
		rep.Branches = append(rep.Branches, br)
		if br.Outcome != OutcomeUnchanged {
			eventbus.Emit(p.bus, eventbus.BranchChanged, br)
		}
	}
	log.Info("pass finished", logx.Int("branches", len(rep.Branches)), logx.Int("changed", rep.Changed()))
	return rep, nil
}

// passState carries what one pass shares between branches.
type passState struct {
	cfg        Config
	classifier *releasenotes.Classifier
	log        logx.Logger

	// publicDownloaded is set when the public branch is downloaded, which
	// makes a beta update in the same pass redundant.
	publicDownloaded bool
}

func (p *Pipeline) processBranch(ctx context.Context, pass *passState, rec branch.Record) BranchReport {
	cfg := pass.cfg
	log := pass.log.With(logx.String("branch", rec.Name))
	br := BranchReport{Branch: rec.Name, BuildID: rec.BuildID, Locked: rec.PasswordProtected}

	res, err := p.tracker.Evaluate(ctx, rec.Name, rec.BuildID, rec.LastUpdated)
	if err != nil {
		log.Warn("state check failed, branch skipped", logx.Err(err))
		br.Outcome, br.Error = OutcomeFailed, err.Error()
		return br
	}
	br.Change = res.Kind.String()
	if !res.Changed() {
		log.Debug("branch up to date", logx.String("build", rec.BuildID))
		br.Outcome = OutcomeUnchanged
		return br
	}
	if res.Previous != nil {
		br.PreviousBuildID = res.Previous.BuildID
	}
	log.Info("branch changed", logx.String("change", br.Change), logx.String("build", rec.BuildID), logx.String("previous", br.PreviousBuildID))
	p.recordChange(ctx, log, br, rec.LastUpdated)

	if rec.PasswordProtected {
		br.Outcome = OutcomeTitleOnly
		br.Messages = p.notifyTitle(ctx, log, rec)
		return br
	}
	if rec.Name == cfg.BetaBranch && pass.publicDownloaded {
		log.Info("skipping beta branch, public branch was updated this pass")
		br.Outcome = OutcomeSuppressed
		return br
	}
	if cfg.SkipDownload {
		br.Outcome = OutcomeTitleOnly
		br.Messages = p.notifyTitle(ctx, log, rec)
		return br
	}
	if rec.Name == cfg.PublicBranch {
		pass.publicDownloaded = true
	}

	gens, err := p.download(ctx, log, cfg, rec.Name)
	if err != nil {
		log.Warn("download failed, branch skipped", logx.Err(err))
		br.Outcome, br.Error = OutcomeFailed, err.Error()
		return br
	}

	if !gens.HasPrevious() {
		br.Outcome = OutcomeBaseline
		if cfg.NotifyOnBaseline {
			br.Messages = p.notifyTitle(ctx, log, rec)
		}
		log.Info("first download stored as baseline")
		return br
	}

	notes, added, ok := p.buildNotes(log, pass, gens)
	if !ok {
		br.Outcome = OutcomeTitleOnly
		br.Messages = p.notifyTitle(ctx, log, rec)
		return br
	}
	br.AddedLines = added

	if path, err := p.ring.WritePatchNotes(rec.Name, notes.Plain()); err != nil {
		log.Warn("patch notes not written", logx.Err(err))
	} else {
		log.Debug("patch notes written", logx.String("path", path))
	}

	br.Messages = p.notifyTitle(ctx, log, rec)
	for _, c := range chunk.Split(notes.Rich(), cfg.MaxMessageLength) {
		if p.enqueue(ctx, log, kit.TextNotification(rec.Name, c)) {
			br.Messages++
		}
	}
	br.Outcome = OutcomeNotified
	return br
}

func (p *Pipeline) download(ctx context.Context, log logx.Logger, cfg Config, name string) (snapshot.Generations, error) {
	st, err := p.ring.Stage(name)
	if err != nil {
		return snapshot.Generations{}, err
	}
	opt := source.MaterializeOptions{Validate: cfg.Validate}
	if name != cfg.PublicBranch {
		opt.Beta = name
	}
	if err := p.src.Materialize(ctx, cfg.AppID, name, st.Dir, opt); err != nil {
		if aerr := p.ring.Abort(st); aerr != nil {
			log.Warn("staging cleanup failed", logx.String("dir", st.Dir), logx.Err(aerr))
		}
		return snapshot.Generations{}, err
	}
	gens, err := p.ring.Commit(st)
	if err != nil {
		if aerr := p.ring.Abort(st); aerr != nil {
			log.Warn("staging cleanup failed", logx.String("dir", st.Dir), logx.Err(aerr))
		}
		return snapshot.Generations{}, err
	}
	if size, err := snapshot.DirSize(gens.Current); err == nil {
		log.Info("branch downloaded", logx.String("size", humanize.Bytes(size)))
	}
	return gens, nil
}

// buildNotes diffs the release notes of the two generations. ok is false when
// either file is missing or unreadable.
func (p *Pipeline) buildNotes(log logx.Logger, pass *passState, gens snapshot.Generations) (releasenotes.FormattedNotes, int, bool) {
	oldText, oerr := snapshot.ReadFile(gens.Previous, pass.cfg.NotesFile)
	newText, nerr := snapshot.ReadFile(gens.Current, pass.cfg.NotesFile)
	if oerr != nil || nerr != nil {
		err := errors.Join(oerr, nerr)
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("release notes missing, sending title only", logx.String("file", pass.cfg.NotesFile))
		} else {
			log.Warn("release notes unreadable, sending title only", logx.Err(err))
		}
		return releasenotes.FormattedNotes{}, 0, false
	}
	added := releasenotes.DiffAdded(oldText, newText)
	sections := pass.classifier.Classify(added)
	return releasenotes.Format(sections, p.now()), len(added), true
}

func (p *Pipeline) notifyTitle(ctx context.Context, log logx.Logger, rec branch.Record) int {
	s := kit.Summary{
		Title:   fmt.Sprintf("Branch %s has been updated", rec.Name),
		Branch:  rec.Name,
		BuildID: rec.BuildID,
		At:      p.now(),
	}
	if p.enqueue(ctx, log, kit.SummaryNotification(s)) {
		return 1
	}
	return 0
}

func (p *Pipeline) enqueue(ctx context.Context, log logx.Logger, n kit.Notification) bool {
	if p.notifier == nil {
		return false
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		log.Warn("notification not queued", logx.String("kind", string(n.Kind)), logx.Err(err))
		return false
	}
	return true
}

func (p *Pipeline) recordChange(ctx context.Context, log logx.Logger, br BranchReport, lastUpdated int64) {
	rec := storage.ChangeRecord{
		At:              p.now().UTC(),
		Branch:          br.Branch,
		Kind:            br.Change,
		PreviousBuildID: br.PreviousBuildID,
		BuildID:         br.BuildID,
		LastUpdated:     lastUpdated,
	}
	if err := p.store.AppendChange(ctx, rec); err != nil {
		log.Warn("change history not recorded", logx.Err(err))
	}
}
