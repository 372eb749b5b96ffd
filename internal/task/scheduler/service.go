package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "branchwatch/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string
}

// Job runs under a per-run timeout when one is registered.
type Job func(ctx context.Context) error

type def struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	job     Job
	entry   cron.EntryID
}

// Entry describes a registered schedule for status output.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next,omitempty"`
	Prev time.Time `json:"prev,omitempty"`
}

// Service owns a robfig cron. A job never overlaps with itself: a tick
// arriving while the previous run is still going is skipped.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	parser cron.Parser

	c    *cron.Cron
	ctx  context.Context
	loc  *time.Location
	defs map[string]*def
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:   map[string]*def{},
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Register adds or replaces the schedule called name.
func (s *Service) Register(name, schedule string, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if _, err := s.parser.Parse(ps.CronSpec()); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.defs[name]; ok && s.c != nil && old.entry != 0 {
		s.c.Remove(old.entry)
	}
	d := &def{name: name, spec: ps, timeout: timeout, job: job}
	s.defs[name] = d
	if s.c != nil {
		if err := s.addLocked(d); err != nil {
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", ps.CronSpec()), logx.Duration("timeout", timeout))
	return nil
}

// Reschedule swaps the schedule of an existing job and keeps its function.
func (s *Service) Reschedule(name, schedule string) error {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule %q not registered", name)
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.CronSpec() == d.spec.CronSpec() {
		return nil
	}
	return s.Register(name, schedule, d.timeout, d.job)
}

func (s *Service) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok {
		return
	}
	if s.c != nil && d.entry != 0 {
		s.c.Remove(d.entry)
	}
	delete(s.defs, name)
}

// Apply updates the config. A timezone change restarts the cron so every
// schedule picks up the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	if s.c != nil && tzChanged {
		ctx := s.ctx
		s.c.Stop()
		s.c = nil
		s.startLocked(ctx)
	}
}

// Start begins triggering. Jobs receive ctx (or a child of it).
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) {
	s.loc = loadLocation(s.cfg.Timezone, s.log)
	s.ctx = ctx
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.log}),
		cron.WithChain(cron.Recover(cronLogger{s.log}), cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	for _, d := range s.defs {
		if err := s.addLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) addLocked(d *def) error {
	ctx := s.ctx
	log := s.log.With(logx.String("job", d.name))
	job, timeout := d.job, d.timeout
	id, err := s.c.AddFunc(d.spec.CronSpec(), func() {
		if ctx.Err() != nil {
			return
		}
		runCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(runCtx); err != nil {
			log.Warn("job failed", logx.Err(err), logx.Duration("took", time.Since(start)))
			return
		}
		log.Debug("job done", logx.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}
	d.entry = id
	return nil
}

// Stop halts triggering and waits for running jobs until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.defs {
		d.entry = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Entries lists schedules sorted by name.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.defs))
	for _, d := range s.defs {
		e := Entry{Name: d.name, Spec: d.spec.CronSpec()}
		if s.c != nil && d.entry != 0 {
			ce := s.c.Entry(d.entry)
			e.Next, e.Prev = ce.Next, ce.Prev
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func loadLocation(tz string, log logx.Logger) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	if msg == "skip" {
		l.log.Info("previous run still active, tick skipped")
		return
	}
	l.log.Trace("cron "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron "+msg, logx.Err(err), logx.Any("kv", kv))
}
