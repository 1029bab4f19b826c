package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/observability"
	"github.com/coursehub/notification-engine/internal/provider"
	"github.com/coursehub/notification-engine/internal/queue"
	"github.com/coursehub/notification-engine/internal/repository"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	maxRetryJitterMillis = 250
)

// RateLimiter throttles per-channel dispatch throughput.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

type WorkerService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	consumer      queue.Consumer
	dispatcher    *Dispatcher
	rateLimiter   RateLimiter
	live          LivePusher
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	now           func() time.Time
	randIntn      func(n int) int
}

func NewWorkerService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	consumer queue.Consumer,
	dispatcher *Dispatcher,
	rateLimiter RateLimiter,
	live LivePusher,
	metrics *observability.Metrics,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications: notifications,
		attempts:      attempts,
		consumer:      consumer,
		dispatcher:    dispatcher,
		rateLimiter:   rateLimiter,
		live:          live,
		metrics:       metrics,
		logger:        logger,
		concurrency:   concurrency,
		now:           time.Now,
		randIntn:      rand.Intn,
	}, nil
}

// Start consumes channel queues and processes dispatch jobs until context
// cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	// Every work queue gets at least one consumer; a concurrency
	// setting below the queue count must not starve a channel.
	workers := s.concurrency
	if workers < len(queueNames) {
		workers = len(queueNames)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.JobMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	logger := observability.WithContextLogger(s.logger, ctx)

	notification, err := s.notifications.LockForDispatch(ctx, msg.NotificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("notification not found during lock, skipping",
				zap.String("notificationId", msg.NotificationID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock notification for dispatch: %w", err)
	}

	// Nil means the record left PENDING in the meantime; ack and skip.
	if notification == nil {
		return nil
	}

	channelName := strings.ToLower(notification.Channel.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(channelName)
		defer s.metrics.DecWorkerInFlight(channelName)
	}

	if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	attemptNumber := notification.RetryCount + 1
	sendStart := s.now()
	_, sendErr := s.dispatcher.Dispatch(ctx, notification)
	if s.metrics != nil {
		s.metrics.ObserveNotificationSendDuration(channelName, s.now().Sub(sendStart))
	}

	if err := s.recordAttempt(ctx, notification, attemptNumber, sendErr); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}

	if sendErr == nil {
		return s.finalizeDelivered(ctx, notification, channelName)
	}

	return s.finalizeFailure(ctx, notification, channelName, attemptNumber, sendErr)
}

// finalizeDelivered walks the record through SENT to DELIVERED. The
// transports confirm handoff synchronously, so both transitions happen
// on provider success.
func (s *WorkerService) finalizeDelivered(ctx context.Context, n *domain.Notification, channelName string) error {
	sentAt := s.now().UTC()
	if err := s.notifications.MarkSent(ctx, n.ID, sentAt); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if err := s.notifications.MarkDelivered(ctx, n.ID, sentAt); err != nil {
		return fmt.Errorf("failed to mark notification delivered: %w", err)
	}

	if s.metrics != nil {
		s.metrics.IncNotificationSent(channelName)
	}
	s.refreshUnread(ctx, n.RecipientID)

	return nil
}

func (s *WorkerService) finalizeFailure(
	ctx context.Context,
	n *domain.Notification,
	channelName string,
	attemptNumber int,
	sendErr error,
) error {
	isTransient := provider.IsTransient(sendErr)

	if isTransient && attemptNumber < n.MaxRetries {
		nextRetryAt := s.now().Add(s.computeRetryDelay(n.Channel, attemptNumber))
		if err := s.notifications.ScheduleRetry(ctx, n.ID, sendErr.Error(), nextRetryAt); err != nil {
			return fmt.Errorf("failed to schedule retry: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	if err := s.notifications.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	if s.metrics != nil {
		reason := "permanent_error"
		if isTransient {
			reason = "retry_exhausted"
		}
		s.metrics.IncNotificationFailed(channelName, reason)
	}

	return nil
}

// computeRetryDelay grows exponentially from a per-channel base, capped
// at 60s, with a small jitter to spread synchronized retries.
func (s *WorkerService) computeRetryDelay(channel domain.Channel, attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay(channel)
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func baseRetryDelay(channel domain.Channel) time.Duration {
	if channel == domain.ChannelPush {
		return 2 * time.Second
	}
	return time.Second
}

func (s *WorkerService) recordAttempt(
	ctx context.Context,
	n *domain.Notification,
	attemptNumber int,
	sendErr error,
) error {
	var attemptErr *string
	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value
	}

	attempt := &domain.DeliveryAttempt{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		Channel:        n.Channel,
		AttemptNumber:  attemptNumber,
		Error:          attemptErr,
		CreatedAt:      s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}

func (s *WorkerService) refreshUnread(ctx context.Context, recipientID string) {
	if s.live == nil {
		return
	}

	count, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		s.logger.Warn("failed to refresh unread count after dispatch",
			zap.String("recipientId", recipientID),
			zap.Error(err),
		)
		return
	}

	s.live.PushUnreadCount(recipientID, count)
}
