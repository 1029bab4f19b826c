package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/observability"
	"github.com/coursehub/notification-engine/internal/queue"
	"github.com/coursehub/notification-engine/internal/repository"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepLimit    = domain.DispatchBatchCap
)

// Scheduler sweeps due PENDING notifications. Claimed queued-channel rows
// are published to their work queues; claimed in-app rows are delivered
// in place. Claiming stamps queued_at atomically, so overlapping sweeps
// never double-publish.
type Scheduler struct {
	notifications repository.NotificationRepository
	publisher     queue.Publisher
	live          LivePusher
	metrics       *observability.Metrics
	logger        *zap.Logger
	interval      time.Duration
	limit         int
	now           func() time.Time
}

func NewScheduler(
	notifications repository.NotificationRepository,
	publisher queue.Publisher,
	live LivePusher,
	metrics *observability.Metrics,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*Scheduler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		notifications: notifications,
		publisher:     publisher,
		live:          live,
		metrics:       metrics,
		logger:        logger,
		interval:      interval,
		limit:         limit,
		now:           time.Now,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.SweepDue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("due sweep initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.SweepDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("due sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepDue claims and routes one batch of due notifications.
func (s *Scheduler) SweepDue(ctx context.Context) error {
	claimed, err := s.notifications.ClaimDueForDispatch(ctx, s.limit)
	if err != nil {
		return fmt.Errorf("failed to claim due notifications: %w", err)
	}

	if len(claimed) == 0 {
		return nil
	}
	if s.metrics != nil {
		s.metrics.AddSweptDue(len(claimed))
	}

	for i := range claimed {
		notification := claimed[i]

		if notification.Channel == domain.ChannelInApp {
			s.deliverInApp(ctx, &notification)
			continue
		}

		msg := queue.JobMessage{
			NotificationID: notification.ID,
			Channel:        notification.Channel,
			Priority:       notification.Priority,
			Attempt:        notification.RetryCount + 1,
			CorrelationID:  uuid.NewString(),
		}

		queueName := queue.QueueName(notification.Channel)
		if err := s.publisher.Publish(ctx, queueName, msg); err != nil {
			s.logger.Error("failed to enqueue due notification",
				zap.String("notificationId", notification.ID),
				zap.String("queue", queueName),
				zap.Error(err),
			)
			// Release the claim so the next sweep retries it.
			if clearErr := s.notifications.ClearQueuedAt(ctx, notification.ID); clearErr != nil {
				s.logger.Error("failed to release claim after enqueue error",
					zap.String("notificationId", notification.ID),
					zap.Error(clearErr),
				)
			}
			continue
		}
	}

	return nil
}

func (s *Scheduler) deliverInApp(ctx context.Context, n *domain.Notification) {
	sentAt := s.now().UTC()
	if err := s.notifications.MarkSent(ctx, n.ID, sentAt); err != nil {
		s.logger.Error("failed to deliver scheduled in-app notification",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		if clearErr := s.notifications.ClearQueuedAt(ctx, n.ID); clearErr != nil {
			s.logger.Error("failed to release claim after in-app delivery error",
				zap.String("notificationId", n.ID),
				zap.Error(clearErr),
			)
		}
		return
	}

	n.Status = domain.StatusSent
	n.SentAt = &sentAt

	if s.live != nil {
		s.live.PushNotification(n)
		if count, err := s.notifications.CountUnread(ctx, n.RecipientID); err == nil {
			s.live.PushUnreadCount(n.RecipientID, count)
		}
	}

	if s.metrics != nil {
		s.metrics.IncNotificationSent(strings.ToLower(n.Channel.String()))
	}
}
