package app

import (
	"context"
	"sync"
	"time"

	"branchwatch/internal/pipeline"
	"branchwatch/internal/task/scheduler"
	logx "branchwatch/pkg/logx"
)

// poller is the part of the pipeline the runner drives.
type poller interface {
	Poll(ctx context.Context) (pipeline.Report, error)
	LastReport() (pipeline.Report, bool)
}

// passRunner serializes pipeline passes. Scheduled ticks and manual triggers
// share one in-flight pass through the guard.
type passRunner struct {
	pipe  poller
	guard scheduler.Guard[pipeline.Report]
	log   logx.Logger

	mu      sync.Mutex
	base    context.Context
	timeout time.Duration
}

func newPassRunner(p poller, timeout time.Duration, log logx.Logger) *passRunner {
	return &passRunner{pipe: p, timeout: timeout, log: log, base: context.Background()}
}

// bind sets the context passes derive from; cancelling it aborts a pass in
// flight.
func (r *passRunner) bind(ctx context.Context) {
	r.mu.Lock()
	r.base = ctx
	r.mu.Unlock()
}

func (r *passRunner) setTimeout(d time.Duration) {
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

func (r *passRunner) pass() (pipeline.Report, error) {
	r.mu.Lock()
	ctx, timeout := r.base, r.timeout
	r.mu.Unlock()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.pipe.Poll(ctx)
}

// Run is the scheduled job.
func (r *passRunner) Run(ctx context.Context) error {
	_, shared, err := r.guard.DoContext(ctx, r.pass)
	if shared {
		r.log.Debug("scheduled tick joined a pass already running")
	}
	return err
}

// Trigger starts a pass, or waits for the one in flight. The pass outlives
// ctx; only the wait is bounded by it.
func (r *passRunner) Trigger(ctx context.Context) (pipeline.Report, bool, error) {
	return r.guard.DoContext(ctx, r.pass)
}

func (r *passRunner) LastReport() (pipeline.Report, bool) { return r.pipe.LastReport() }

func (r *passRunner) Running() bool { return r.guard.Running() }
