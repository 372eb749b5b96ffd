package notifier

import (
	"time"

	kit "branchwatch/internal/transport"
)

type Config struct {
	Enabled    bool
	QueueSize  int
	RatePerSec float64
	Crosspost  bool
	// SendTimeout bounds one adapter call.
	SendTimeout time.Duration
	HistorySize int
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	Branch string    `json:"branch,omitempty"`
	Kind   kit.Kind  `json:"kind"`
	Text   string    `json:"text"`
	Error  string    `json:"error,omitempty"`
}

// NotificationEvent is the payload of notifier.* bus events.
type NotificationEvent struct {
	Adapter   string    `json:"adapter"`
	Branch    string    `json:"branch,omitempty"`
	Kind      kit.Kind  `json:"kind"`
	MessageID string    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
