package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"branchwatch/internal/eventbus"
	kit "branchwatch/internal/transport"
	logx "branchwatch/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan kit.Notification
	cancel   context.CancelFunc
	workerDn chan struct{}
	stopDone chan struct{} // non-nil while stopping

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates rate, crosspost and timeouts in place. Queue size changes
// take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	} else if s.cfg.RatePerSec != cfg.RatePerSec {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	}
	s.cfg = cfg
}

// Start launches the worker. Calling it on a running service is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()
	if s.queue != nil || !s.cfg.Enabled || s.adapter == nil {
		return
	}

	wctx, cancel := context.WithCancel(ctx)
	s.queue = make(chan kit.Notification, s.cfg.QueueSize)
	s.cancel = cancel
	s.workerDn = make(chan struct{})
	s.accepting = true

	q, done := s.queue, s.workerDn
	go func() {
		defer close(done)
		s.workerLoop(wctx, q)
	}()
	s.log.Debug("notifier started", logx.String("adapter", s.adapter.Name()), logx.Int("queue", s.cfg.QueueSize))
}

// Stop refuses new notifications and drains the queue until ctx is done,
// then abandons whatever is left.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	cancel, workerDn := s.cancel, s.workerDn
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		<-workerDn
		cancel()

		s.mu.Lock()
		s.queue = nil
		s.cancel = nil
		s.workerDn = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
	}
}

// Notify enqueues n without waiting for delivery.
func (s *Service) Notify(ctx context.Context, n kit.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- n:
		return nil
	default:
		s.emit(eventbus.NotifierDrop, n, "", ErrQueueFull)
		return ErrQueueFull
	}
}

// Pending reports the number of queued notifications.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(max int, it HistoryItem) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan kit.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.deliver(ctx, n)
		}
	}
}

func (s *Service) deliver(ctx context.Context, n kit.Notification) {
	s.mu.Lock()
	cfg, lim, ad := s.cfg, s.limiter, s.adapter
	s.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	ref, err := send(callCtx, ad, n)
	cancel()

	item := HistoryItem{At: time.Now(), Branch: n.Branch, Kind: n.Kind, Text: historyText(n)}
	if err != nil {
		item.Error = err.Error()
		s.appendHistory(cfg.HistorySize, item)
		s.log.Warn("notification failed", logx.String("branch", n.Branch), logx.String("kind", string(n.Kind)), logx.Err(err))
		s.emit(eventbus.NotifierFailed, n, "", err)
		return
	}
	s.appendHistory(cfg.HistorySize, item)
	s.emit(eventbus.NotifierSent, n, ref.ID, nil)

	if !cfg.Crosspost {
		return
	}
	xctx, xcancel := context.WithTimeout(ctx, cfg.SendTimeout)
	err = ad.Crosspost(xctx, ref)
	xcancel()
	if err != nil {
		s.log.Warn("crosspost failed", logx.String("branch", n.Branch), logx.String("message", ref.ID), logx.Err(err))
		s.emit(eventbus.NotifierFailed, n, ref.ID, fmt.Errorf("crosspost: %w", err))
		return
	}
	s.log.Debug("crossposted", logx.String("branch", n.Branch), logx.String("message", ref.ID))
}

func send(ctx context.Context, ad kit.Adapter, n kit.Notification) (kit.MessageRef, error) {
	switch n.Kind {
	case kit.KindSummary:
		return ad.SendSummary(ctx, n.Summary)
	case kit.KindText:
		return ad.SendText(ctx, n.Text)
	default:
		return kit.MessageRef{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}

func historyText(n kit.Notification) string {
	if n.Kind == kit.KindSummary {
		return n.Summary.Title
	}
	return n.Text
}

func (s *Service) emit(typ string, n kit.Notification, msgID string, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Branch: n.Branch, Kind: n.Kind, MessageID: msgID, At: time.Now()}
	if s.adapter != nil {
		ev.Adapter = s.adapter.Name()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	eventbus.Emit(s.bus, typ, ev)
}
