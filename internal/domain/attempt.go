package domain

import "time"

// DeliveryAttempt records a single transport attempt for a notification.
type DeliveryAttempt struct {
	ID             string
	NotificationID string
	Channel        Channel
	AttemptNumber  int
	Error          *string
	CreatedAt      time.Time
}
