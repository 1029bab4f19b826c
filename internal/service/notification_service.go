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
	"github.com/coursehub/notification-engine/internal/validator"
)

type NotificationService struct {
	notifications repository.NotificationRepository
	templates     repository.TemplateRepository
	publisher     queue.Publisher
	live          LivePusher
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// BulkResult reports per-item outcomes of a bulk send. A bulk request is
// rejected wholesale at validation, but enqueue failures after the rows
// exist are reported per item instead of failing the call.
type BulkResult struct {
	Successful []domain.Notification
	Failed     []BulkFailure
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// StatsSummary is the per-recipient notification statistics view.
type StatsSummary struct {
	Total     int64            `json:"total"`
	Unread    int64            `json:"unread"`
	ByChannel map[string]int64 `json:"byChannel"`
}

// TemplateSend asks for a notification expanded from a stored template.
type TemplateSend struct {
	TemplateName string
	RecipientID  string
	Variables    map[string]string
	Priority     string
	Payload      map[string]any
	ScheduledAt  *string
	MaxRetries   *int
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	templates repository.TemplateRepository,
	publisher queue.Publisher,
	live LivePusher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		templates:     templates,
		publisher:     publisher,
		live:          live,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Create persists a validated notification and routes it by channel:
// IN_APP is stored already sent and mirrored live, EMAIL and PUSH are
// enqueued (now or by the due sweep when scheduled), SMS is finalized
// FAILED because no transport exists for it.
func (s *NotificationService) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.prepareForCreate(n); err != nil {
		return nil, err
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	return s.routeCreated(ctx, n), nil
}

// CreateBulk persists the batch in one insert, then submits every
// queued item as one atomic enqueue. Items that fail after insert are
// reported in the result rather than failing the call.
func (s *NotificationService) CreateBulk(ctx context.Context, notifications []domain.Notification) (*BulkResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(notifications) == 0 {
		return nil, fmt.Errorf("%w: batch must include at least one notification", domain.ErrValidation)
	}
	if len(notifications) > domain.MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size exceeds %d", domain.ErrValidation, domain.MaxBatchSize)
	}

	ptrs := make([]*domain.Notification, len(notifications))
	for i := range notifications {
		if err := s.prepareForCreate(&notifications[i]); err != nil {
			return nil, err
		}
		ptrs[i] = &notifications[i]
	}

	if err := s.notifications.CreateBatch(ctx, ptrs); err != nil {
		return nil, err
	}

	var queued []*domain.Notification
	for i := range ptrs {
		if ptrs[i].Channel.Queued() {
			if ptrs[i].QueuedAt != nil {
				queued = append(queued, ptrs[i])
			}
			continue
		}
		s.routeCreated(ctx, ptrs[i])
	}

	s.enqueueBatch(ctx, queued)

	result := &BulkResult{}
	for i := range ptrs {
		current := ptrs[i]
		if current.Status == domain.StatusFailed {
			errMsg := "delivery failed"
			if current.ErrorMessage != nil {
				errMsg = *current.ErrorMessage
			}
			result.Failed = append(result.Failed, BulkFailure{ID: current.ID, Error: errMsg})
			continue
		}
		result.Successful = append(result.Successful, *current)
	}

	if len(result.Failed) > 0 {
		s.logger.Warn("bulk send completed with failures",
			zap.Int("failed", len(result.Failed)),
			zap.Int("total", len(notifications)),
		)
	}

	return result, nil
}

// SendFromTemplate expands a stored template and creates the result.
// Rendered title and message are revalidated so template output obeys
// the same bounds as direct input.
func (s *NotificationService) SendFromTemplate(ctx context.Context, req TemplateSend) (*domain.Notification, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("template repository is not configured")
	}
	if strings.TrimSpace(req.TemplateName) == "" {
		return nil, fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}

	tmpl, err := s.templates.GetActiveByName(ctx, strings.TrimSpace(req.TemplateName))
	if err != nil {
		return nil, err
	}

	title, message := tmpl.Render(req.Variables)

	n, err := validator.ValidateCreate(validator.CreateRequest{
		RecipientID: req.RecipientID,
		Channel:     tmpl.Channel.String(),
		Priority:    req.Priority,
		Title:       title,
		Message:     message,
		Payload:     req.Payload,
		ScheduledAt: req.ScheduledAt,
		MaxRetries:  req.MaxRetries,
	}, s.now().UTC())
	if err != nil {
		return nil, err
	}

	return s.Create(ctx, n)
}

func (s *NotificationService) GetOwned(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetOwned(ctx, strings.TrimSpace(id), recipientID)
}

func (s *NotificationService) ListMine(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if strings.TrimSpace(params.RecipientID) == "" {
		return nil, 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.ListByRecipient(ctx, params)
}

func (s *NotificationService) ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	return s.notifications.ListUnread(ctx, recipientID, limit)
}

func (s *NotificationService) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	return s.notifications.CountUnread(ctx, recipientID)
}

// MarkRead marks an owned notification read. Marking an already-read
// record is a no-op returning the record unchanged; records that never
// reached the recipient (PENDING, FAILED) cannot be read.
func (s *NotificationService) MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	notification, err := s.GetOwned(ctx, id, recipientID)
	if err != nil {
		return nil, err
	}

	if notification.Status == domain.StatusRead {
		return notification, nil
	}
	if !notification.Status.CanTransitionTo(domain.StatusRead) {
		return nil, fmt.Errorf("%w: notification in status %s cannot be marked read",
			domain.ErrConflict, notification.Status)
	}

	readAt := s.now().UTC()
	if err := s.notifications.MarkRead(ctx, notification.ID, readAt); err != nil {
		return nil, err
	}

	notification.Status = domain.StatusRead
	notification.ReadAt = &readAt

	s.refreshUnread(ctx, recipientID)

	return notification, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if strings.TrimSpace(recipientID) == "" {
		return 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	updated, err := s.notifications.MarkAllRead(ctx, recipientID, s.now().UTC())
	if err != nil {
		return 0, err
	}

	if updated > 0 {
		s.refreshUnread(ctx, recipientID)
	}

	return updated, nil
}

func (s *NotificationService) Delete(ctx context.Context, id, recipientID string) error {
	notification, err := s.GetOwned(ctx, id, recipientID)
	if err != nil {
		return err
	}

	if err := s.notifications.Delete(ctx, notification.ID, recipientID); err != nil {
		return err
	}

	if notification.IsUnread() {
		s.refreshUnread(ctx, recipientID)
	}

	return nil
}

func (s *NotificationService) Stats(ctx context.Context, recipientID string) (*StatsSummary, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	channelCounts, err := s.notifications.CountByChannel(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	unread, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	summary := &StatsSummary{
		Unread:    unread,
		ByChannel: make(map[string]int64, len(channelCounts)),
	}
	for _, c := range channelCounts {
		summary.ByChannel[strings.ToLower(c.Channel.String())] = c.Count
		summary.Total += c.Count
	}

	return summary, nil
}

// prepareForCreate finalizes a validated notification for insertion.
// IN_APP rows are stored already SENT; queued channels that are due now
// get queued_at stamped up front so the due sweep cannot claim them while
// the immediate publish is in flight.
func (s *NotificationService) prepareForCreate(n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}
	if err := n.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(n.ID) == "" {
		n.ID = uuid.NewString()
	}
	n.Status = domain.StatusPending
	n.RetryCount = 0
	n.SentAt = nil
	n.ReadAt = nil
	n.NextRetryAt = nil
	n.QueuedAt = nil
	n.ErrorMessage = nil

	now := s.now().UTC()

	switch {
	case n.Channel == domain.ChannelInApp:
		// Scheduled in-app rows stay PENDING until the due sweep
		// delivers them.
		if n.ScheduledAt == nil || !n.ScheduledAt.After(now) {
			n.Status = domain.StatusSent
			n.SentAt = &now
		}
	case n.Channel.Queued():
		if n.ScheduledAt == nil {
			n.ScheduledAt = &now
		}
		if !n.ScheduledAt.After(now) {
			n.QueuedAt = &now
		}
	}

	return nil
}

// routeCreated performs post-insert channel routing. It never returns an
// error: failures are recorded on the notification itself.
func (s *NotificationService) routeCreated(ctx context.Context, n *domain.Notification) *domain.Notification {
	switch {
	case n.Channel == domain.ChannelInApp:
		if n.Status == domain.StatusSent {
			s.pushLive(n)
			s.refreshUnread(ctx, n.RecipientID)
			if s.metrics != nil {
				s.metrics.IncNotificationSent(strings.ToLower(n.Channel.String()))
			}
		}
	case n.Channel == domain.ChannelSMS:
		s.failUnsupported(ctx, n)
	case n.Channel.Queued() && n.QueuedAt != nil:
		s.publishJob(ctx, n)
	}

	return n
}

func (s *NotificationService) publishJob(ctx context.Context, n *domain.Notification) {
	msg := queue.JobMessage{
		NotificationID: n.ID,
		Channel:        n.Channel,
		Priority:       n.Priority,
		Attempt:        n.RetryCount + 1,
		CorrelationID:  uuid.NewString(),
	}

	if err := s.publisher.Publish(ctx, queue.QueueName(n.Channel), msg); err != nil {
		s.logger.Error("failed to publish notification, leaving it for the due sweep",
			zap.String("notificationId", n.ID),
			zap.String("channel", string(n.Channel)),
			zap.Error(err),
		)
		// Releasing queued_at hands the row back to the sweep.
		if clearErr := s.notifications.ClearQueuedAt(ctx, n.ID); clearErr != nil {
			s.logger.Error("failed to release queued mark after publish error",
				zap.String("notificationId", n.ID),
				zap.Error(clearErr),
			)
		}
		n.QueuedAt = nil
	}
}

// enqueueBatch submits all queued rows as one atomic publish. On failure
// every queued mark is released so the due sweep re-claims the rows.
func (s *NotificationService) enqueueBatch(ctx context.Context, queued []*domain.Notification) {
	if len(queued) == 0 {
		return
	}

	items := make([]queue.BatchItem, len(queued))
	for i, n := range queued {
		items[i] = queue.BatchItem{
			Queue: queue.QueueName(n.Channel),
			Message: queue.JobMessage{
				NotificationID: n.ID,
				Channel:        n.Channel,
				Priority:       n.Priority,
				Attempt:        n.RetryCount + 1,
				CorrelationID:  uuid.NewString(),
			},
		}
	}

	if err := s.publisher.PublishBatch(ctx, items); err != nil {
		s.logger.Error("failed to publish batch, leaving rows for the due sweep",
			zap.Int("count", len(queued)),
			zap.Error(err),
		)
		for _, n := range queued {
			if clearErr := s.notifications.ClearQueuedAt(ctx, n.ID); clearErr != nil {
				s.logger.Error("failed to release queued mark after batch publish error",
					zap.String("notificationId", n.ID),
					zap.Error(clearErr),
				)
			}
			n.QueuedAt = nil
		}
	}
}

func (s *NotificationService) failUnsupported(ctx context.Context, n *domain.Notification) {
	errMsg := fmt.Sprintf("channel %s is not supported", n.Channel)
	if err := s.notifications.MarkFailed(ctx, n.ID, errMsg); err != nil {
		s.logger.Error("failed to finalize unsupported-channel notification",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return
	}

	n.Status = domain.StatusFailed
	n.ErrorMessage = &errMsg
	n.RetryCount = n.MaxRetries

	if s.metrics != nil {
		s.metrics.IncNotificationFailed(strings.ToLower(n.Channel.String()), "unsupported_channel")
	}
}

func (s *NotificationService) pushLive(n *domain.Notification) {
	if s.live == nil {
		return
	}
	s.live.PushNotification(n)
}

func (s *NotificationService) refreshUnread(ctx context.Context, recipientID string) {
	if s.live == nil {
		return
	}

	count, err := s.notifications.CountUnread(ctx, recipientID)
	if err != nil {
		s.logger.Warn("failed to refresh unread count",
			zap.String("recipientId", recipientID),
			zap.Error(err),
		)
		return
	}

	s.live.PushUnreadCount(recipientID, count)
}
