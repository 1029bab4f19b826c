package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/queue"
	"github.com/coursehub/notification-engine/internal/repository"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
)

// RetryScanner re-enqueues FAILED-in-flight notifications whose backoff
// deadline has passed. Publishing happens before the retry mark is
// cleared, so a crash between the two at worst redelivers (the worker's
// dispatch lock absorbs the duplicate) rather than losing the retry.
type RetryScanner struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	logger        *zap.Logger
	interval      time.Duration
	limit         int
}

func NewRetryScanner(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
		interval:      interval,
		limit:         limit,
	}, nil
}

// Start scans immediately, then on every interval tick, until the
// context ends. Scan errors are logged and the loop keeps going.
func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runScan := func() {
		if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("retry scan failed", zap.Error(err))
		}
	}

	runScan()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runScan()
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	due, err := s.notifications.GetDueForRetry(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due retries: %w", err)
	}

	requeued := 0
	for i := range due {
		if s.requeue(ctx, &due[i]) {
			requeued++
		}
	}

	if requeued > 0 {
		s.logger.Info("requeued due retries", zap.Int("count", requeued))
	}

	return nil
}

// requeue publishes one retry job and clears its retry mark. A publish
// failure leaves the mark intact so the next scan picks the row up again.
func (s *RetryScanner) requeue(ctx context.Context, n *domain.Notification) bool {
	queueName := queue.QueueName(n.Channel)
	msg := queue.JobMessage{
		NotificationID: n.ID,
		Channel:        n.Channel,
		Priority:       n.Priority,
		Attempt:        n.RetryCount + 1,
		CorrelationID:  uuid.NewString(),
	}

	if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
		s.logger.Error("failed to enqueue retry",
			zap.String("notificationId", n.ID),
			zap.String("queue", queueName),
			zap.Error(err),
		)
		return false
	}

	if err := s.notifications.ClearNextRetryAt(ctx, n.ID); err != nil {
		s.logger.Error("failed to clear next retry timestamp after enqueue",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return false
	}

	return true
}
