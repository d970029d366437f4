package notifier

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks transient transport failures worth retrying.
	ErrUnavailable = errors.New("notification transport unavailable")
	// ErrNoTransport means a recipient's channel is not configured.
	ErrNoTransport      = errors.New("no transport for recipient")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrEmptyMessage     = errors.New("message has no recipients")
	// ErrOutcomeUnknown means a send was abandoned while the transport may
	// still complete it. It is never retried.
	ErrOutcomeUnknown = errors.New("send abandoned, delivery outcome unknown")
)

// Message is one report delivery.
type Message struct {
	Recipients []string
	Subject    string
	Body       string

	// Optional correlation ids carried into logs and history.
	ScheduleID string
	RunID      string
}

// Sender is what the dispatcher depends on. A nil error means every
// recipient was handed to its transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSlack    Channel = "slack"
	ChannelTelegram Channel = "telegram"
	ChannelLog      Channel = "log"
)

// Transport delivers one message to a batch of addresses on its channel.
// Addresses have the channel prefix stripped.
type Transport interface {
	Channel() Channel
	Deliver(ctx context.Context, to []string, subject, body string) error
}

// Config controls rate limiting and retries.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// SendTimeout bounds a single transport call.
	SendTimeout time.Duration
	// LogOnly routes every recipient to the log transport.
	LogOnly     bool
	HistorySize int
}

// Delivery is one channel attempt recorded in the history ring.
type Delivery struct {
	At         time.Time `json:"at"`
	Channel    Channel   `json:"channel"`
	Recipients int       `json:"recipients"`
	Attempts   int       `json:"attempts"`
	ScheduleID string    `json:"schedule_id,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Error      string    `json:"error,omitempty"`
}
