package queue

import (
	"fmt"
	"strings"

	"github.com/coursehub/notification-engine/internal/domain"
)

// JobMessage is the broker payload for a dispatch job. It carries only
// the identifier and routing hints; the worker reloads the notification
// row before attempting delivery.
type JobMessage struct {
	NotificationID string          `json:"notificationId"`
	Channel        domain.Channel  `json:"channel"`
	Priority       domain.Priority `json:"priority"`
	Attempt        int             `json:"attempt"`
	CorrelationID  string          `json:"correlationId,omitempty"`
}

func (m JobMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Channel.Queued() {
		return fmt.Errorf("channel %q is not a queued channel", m.Channel)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	if m.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}
