// Package transport defines the chat channel adapters notifications are
// delivered through.
package transport

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupported = errors.New("transport: operation not supported")

// Summary is the structured headline of a branch update. Channels render it
// natively (Discord embed, Telegram bold line).
type Summary struct {
	Title   string
	Branch  string
	BuildID string
	At      time.Time
}

type Kind string

const (
	KindSummary Kind = "summary"
	KindText    Kind = "text"
)

// Notification is one message for the notifier queue. Exactly one of Summary
// or Text is meaningful, depending on Kind.
type Notification struct {
	Kind    Kind
	Branch  string
	Summary Summary
	Text    string
}

func SummaryNotification(s Summary) Notification {
	return Notification{Kind: KindSummary, Branch: s.Branch, Summary: s}
}

func TextNotification(branch, text string) Notification {
	return Notification{Kind: KindText, Branch: branch, Text: text}
}

// MessageRef identifies a delivered message in adapter terms.
type MessageRef struct {
	Channel string
	ID      string
}

func (r MessageRef) IsZero() bool { return r.ID == "" }

type Adapter interface {
	Name() string
	SendSummary(ctx context.Context, s Summary) (MessageRef, error)
	SendText(ctx context.Context, text string) (MessageRef, error)
	// Crosspost amplifies an already delivered message (Discord announcement
	// crosspost, Telegram forward). Adapters without the concept return nil.
	Crosspost(ctx context.Context, ref MessageRef) error
	Close() error
}
