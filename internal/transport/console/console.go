// Package console is a transport that prints notifications instead of
// delivering them. Used for dry runs.
package console

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	kit "branchwatch/internal/transport"
	logx "branchwatch/pkg/logx"
)

type Adapter struct {
	mu  sync.Mutex
	w   io.Writer
	log logx.Logger
	seq atomic.Int64
}

var _ kit.Adapter = (*Adapter)(nil)

func New(w io.Writer, log logx.Logger) *Adapter {
	if w == nil {
		w = io.Discard
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{w: w, log: log}
}

func (a *Adapter) Name() string { return "console" }

func (a *Adapter) SendSummary(_ context.Context, s kit.Summary) (kit.MessageRef, error) {
	line := "== " + s.Title
	if s.BuildID != "" {
		line += " (build " + s.BuildID + ")"
	}
	return a.write(line)
}

func (a *Adapter) SendText(_ context.Context, text string) (kit.MessageRef, error) {
	return a.write(text)
}

func (a *Adapter) write(text string) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := fmt.Fprintln(a.w, text); err != nil {
		return kit.MessageRef{}, err
	}
	id := strconv.FormatInt(a.seq.Add(1), 10)
	return kit.MessageRef{Channel: "console", ID: id}, nil
}

func (a *Adapter) Crosspost(_ context.Context, ref kit.MessageRef) error {
	a.log.Debug("crosspost", logx.String("id", ref.ID))
	return nil
}

func (a *Adapter) Close() error { return nil }
