package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusRead      Status = "READ"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusRead:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// statusTransitions is the full legal transition table. READ is terminal.
var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusFailed, StatusRead},
	StatusDelivered: {StatusRead, StatusFailed},
	StatusFailed:    {StatusPending, StatusSent},
	StatusRead:      {},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelSMS   Channel = "SMS"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS:
		return true
	}
	return false
}

// Queued reports whether the channel is delivered through the durable
// work queues. IN_APP is delivered at creation time and SMS has no
// transport, so neither gets a queue.
func (c Channel) Queued() bool {
	return c == ChannelEmail || c == ChannelPush
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Priority represents the message priority level. It is an ordering hint
// for the work queues, not a strict guarantee.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Field limits (in characters, post-sanitization).
const (
	MaxTitleLen      = 255
	MaxMessageLen    = 1000
	MaxPayloadLen    = 5000
	DefaultMaxRetry  = 3
	MinMaxRetries    = 1
	MaxMaxRetries    = 10
	MaxBatchSize     = 1000
	DispatchBatchCap = 100
)

// Notification is one delivery attempt record for a single recipient.
// Persistence mapping lives in the repository models, not here.
type Notification struct {
	ID           string
	RecipientID  string
	Channel      Channel
	Priority     Priority
	Title        string
	Message      string
	Payload      map[string]any
	Status       Status
	Campaign     *string
	ScheduledAt  *time.Time
	SentAt       *time.Time
	ReadAt       *time.Time
	ErrorMessage *string
	RetryCount   int
	MaxRetries   int
	NextRetryAt  *time.Time
	QueuedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (n *Notification) Validate() error {
	if n.RecipientID == "" {
		return fmt.Errorf("%w: recipient id is required", ErrValidation)
	}
	if n.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if n.Message == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if n.MaxRetries < MinMaxRetries || n.MaxRetries > MaxMaxRetries {
		return fmt.Errorf("%w: maxRetries must be between %d and %d (got %d)",
			ErrValidation, MinMaxRetries, MaxMaxRetries, n.MaxRetries)
	}
	if titleLen := len([]rune(n.Title)); titleLen > MaxTitleLen {
		return fmt.Errorf("%w: title exceeds %d characters (got %d)", ErrValidation, MaxTitleLen, titleLen)
	}
	if msgLen := len([]rune(n.Message)); msgLen > MaxMessageLen {
		return fmt.Errorf("%w: message exceeds %d characters (got %d)", ErrValidation, MaxMessageLen, msgLen)
	}
	return nil
}

// IsUnread reports whether the notification counts toward the
// recipient's unread badge.
func (n *Notification) IsUnread() bool {
	return (n.Status == StatusSent || n.Status == StatusDelivered) && n.ReadAt == nil
}
