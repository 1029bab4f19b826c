package service

import (
	"context"
	"sync"
	"time"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/provider"
	"github.com/coursehub/notification-engine/internal/queue"
	"github.com/coursehub/notification-engine/internal/repository"
)

// Function-field fakes shared by the service tests. Unset fields succeed
// with zero values.

type fakeNotificationRepo struct {
	createFn              func(ctx context.Context, n *domain.Notification) error
	createBatchFn         func(ctx context.Context, notifications []*domain.Notification) error
	getByIDFn             func(ctx context.Context, id string) (*domain.Notification, error)
	getOwnedFn            func(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	listByRecipientFn     func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	listUnreadFn          func(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	countUnreadFn         func(ctx context.Context, recipientID string) (int64, error)
	countByChannelFn      func(ctx context.Context, recipientID string) ([]repository.ChannelCount, error)
	countByStatusFn       func(ctx context.Context) ([]repository.StatusCount, error)
	markReadFn            func(ctx context.Context, id string, at time.Time) error
	markAllReadFn         func(ctx context.Context, recipientID string, at time.Time) (int64, error)
	deleteFn              func(ctx context.Context, id, recipientID string) error
	markQueuedFn          func(ctx context.Context, id string, at time.Time) error
	clearQueuedAtFn       func(ctx context.Context, id string) error
	claimDueForDispatchFn func(ctx context.Context, limit int) ([]domain.Notification, error)
	lockForDispatchFn     func(ctx context.Context, id string) (*domain.Notification, error)
	markSentFn            func(ctx context.Context, id string, sentAt time.Time) error
	markDeliveredFn       func(ctx context.Context, id string, sentAt time.Time) error
	scheduleRetryFn       func(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error
	markFailedFn          func(ctx context.Context, id, errMsg string) error
	getDueForRetryFn      func(ctx context.Context, limit int) ([]domain.Notification, error)
	clearNextRetryAtFn    func(ctx context.Context, id string) error
	hasRecentCampaignFn   func(ctx context.Context, recipientID, campaign string, since time.Time) (bool, error)
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, notifications)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) GetOwned(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	if f.getOwnedFn != nil {
		return f.getOwnedFn(ctx, id, recipientID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) ListByRecipient(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listByRecipientFn != nil {
		return f.listByRecipientFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if f.listUnreadFn != nil {
		return f.listUnreadFn(ctx, recipientID, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if f.countUnreadFn != nil {
		return f.countUnreadFn(ctx, recipientID)
	}
	return 0, nil
}

func (f *fakeNotificationRepo) CountByChannel(ctx context.Context, recipientID string) ([]repository.ChannelCount, error) {
	if f.countByChannelFn != nil {
		return f.countByChannelFn(ctx, recipientID)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) CountByStatus(ctx context.Context) ([]repository.StatusCount, error) {
	if f.countByStatusFn != nil {
		return f.countByStatusFn(ctx)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, id, at)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, recipientID, at)
	}
	return 0, nil
}

func (f *fakeNotificationRepo) Delete(ctx context.Context, id, recipientID string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id, recipientID)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkQueued(ctx context.Context, id string, at time.Time) error {
	if f.markQueuedFn != nil {
		return f.markQueuedFn(ctx, id, at)
	}
	return nil
}

func (f *fakeNotificationRepo) ClearQueuedAt(ctx context.Context, id string) error {
	if f.clearQueuedAtFn != nil {
		return f.clearQueuedAtFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) ClaimDueForDispatch(ctx context.Context, limit int) ([]domain.Notification, error) {
	if f.claimDueForDispatchFn != nil {
		return f.claimDueForDispatchFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) LockForDispatch(ctx context.Context, id string) (*domain.Notification, error) {
	if f.lockForDispatchFn != nil {
		return f.lockForDispatchFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, sentAt)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkDelivered(ctx context.Context, id string, sentAt time.Time) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, sentAt)
	}
	return nil
}

func (f *fakeNotificationRepo) ScheduleRetry(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, errMsg, nextRetryAt)
	}
	return nil
}

func (f *fakeNotificationRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, errMsg)
	}
	return nil
}

func (f *fakeNotificationRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Notification, error) {
	if f.getDueForRetryFn != nil {
		return f.getDueForRetryFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearNextRetryAtFn != nil {
		return f.clearNextRetryAtFn(ctx, id)
	}
	return nil
}

func (f *fakeNotificationRepo) HasRecentCampaign(ctx context.Context, recipientID, campaign string, since time.Time) (bool, error) {
	if f.hasRecentCampaignFn != nil {
		return f.hasRecentCampaignFn(ctx, recipientID, campaign, since)
	}
	return false, nil
}

type fakeTemplateRepo struct {
	createFn          func(ctx context.Context, t *domain.NotificationTemplate) error
	getActiveByNameFn func(ctx context.Context, name string) (*domain.NotificationTemplate, error)
	listFn            func(ctx context.Context) ([]domain.NotificationTemplate, error)
}

func (f *fakeTemplateRepo) Create(ctx context.Context, t *domain.NotificationTemplate) error {
	if f.createFn != nil {
		return f.createFn(ctx, t)
	}
	return nil
}

func (f *fakeTemplateRepo) GetActiveByName(ctx context.Context, name string) (*domain.NotificationTemplate, error) {
	if f.getActiveByNameFn != nil {
		return f.getActiveByNameFn(ctx, name)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) List(ctx context.Context) ([]domain.NotificationTemplate, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

type fakeAttemptRepo struct {
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}

func (f *fakeAttemptRepo) ListRecent(ctx context.Context, limit int) ([]domain.DeliveryAttempt, error) {
	return nil, nil
}

type fakePublisher struct {
	mu             sync.Mutex
	published      []publishedJob
	publishFn      func(ctx context.Context, queueName string, msg queue.JobMessage) error
	publishBatchFn func(ctx context.Context, items []queue.BatchItem) error
}

type publishedJob struct {
	queue string
	msg   queue.JobMessage
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.JobMessage) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedJob{queue: queueName, msg: msg})
	return nil
}

func (f *fakePublisher) PublishBatch(ctx context.Context, items []queue.BatchItem) error {
	if f.publishBatchFn != nil {
		if err := f.publishBatchFn(ctx, items); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		f.published = append(f.published, publishedJob{queue: item.Queue, msg: item.Message})
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) jobs() []publishedJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedJob, len(f.published))
	copy(out, f.published)
	return out
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeLivePusher struct {
	mu           sync.Mutex
	pushed       []domain.Notification
	unreadCounts map[string]int64
}

func (f *fakeLivePusher) PushNotification(n *domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n != nil {
		f.pushed = append(f.pushed, *n)
	}
}

func (f *fakeLivePusher) PushUnreadCount(recipientID string, count int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreadCounts == nil {
		f.unreadCounts = make(map[string]int64)
	}
	f.unreadCounts[recipientID] = count
}

func (f *fakeLivePusher) pushedNotifications() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Notification, len(f.pushed))
	copy(out, f.pushed)
	return out
}

func (f *fakeLivePusher) unreadCount(recipientID string) (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count, ok := f.unreadCounts[recipientID]
	return count, ok
}

type fakePlatformRepo struct {
	userByIDFn               func(ctx context.Context, id string) (*domain.User, error)
	adminsFn                 func(ctx context.Context) ([]domain.User, error)
	deviceTokensFn           func(ctx context.Context, userID string) ([]string, error)
	inactiveUsersFn          func(ctx context.Context, lastLoginBefore time.Time) ([]domain.User, error)
	incompleteEnrollmentsFn  func(ctx context.Context, enrolledBefore time.Time) ([]domain.Enrollment, error)
	stalledProgressFn        func(ctx context.Context, unmodifiedSince time.Time) ([]domain.CourseProgress, error)
	recentlyActiveFn         func(ctx context.Context, updatedSince time.Time) ([]domain.CourseProgress, error)
	countUsersRegisteredFn   func(ctx context.Context, from, to time.Time) (int64, error)
	countEnrollmentsFn       func(ctx context.Context, from, to time.Time) (int64, error)
	countCompletionsFn       func(ctx context.Context, from, to time.Time) (int64, error)
	countActiveUsersFn       func(ctx context.Context, from, to time.Time) (int64, error)
	topCoursesFn             func(ctx context.Context, from, to time.Time, limit int) ([]repository.CourseStat, error)
	deleteActivityOlderFn    func(ctx context.Context, cutoff time.Time) (int64, error)
	deleteAnalyticsOlderFn   func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (f *fakePlatformRepo) UserByID(ctx context.Context, id string) (*domain.User, error) {
	if f.userByIDFn != nil {
		return f.userByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePlatformRepo) Admins(ctx context.Context) ([]domain.User, error) {
	if f.adminsFn != nil {
		return f.adminsFn(ctx)
	}
	return nil, nil
}

func (f *fakePlatformRepo) DeviceTokens(ctx context.Context, userID string) ([]string, error) {
	if f.deviceTokensFn != nil {
		return f.deviceTokensFn(ctx, userID)
	}
	return nil, nil
}

func (f *fakePlatformRepo) InactiveUsers(ctx context.Context, lastLoginBefore time.Time) ([]domain.User, error) {
	if f.inactiveUsersFn != nil {
		return f.inactiveUsersFn(ctx, lastLoginBefore)
	}
	return nil, nil
}

func (f *fakePlatformRepo) IncompleteEnrollments(ctx context.Context, enrolledBefore time.Time) ([]domain.Enrollment, error) {
	if f.incompleteEnrollmentsFn != nil {
		return f.incompleteEnrollmentsFn(ctx, enrolledBefore)
	}
	return nil, nil
}

func (f *fakePlatformRepo) StalledProgress(ctx context.Context, unmodifiedSince time.Time) ([]domain.CourseProgress, error) {
	if f.stalledProgressFn != nil {
		return f.stalledProgressFn(ctx, unmodifiedSince)
	}
	return nil, nil
}

func (f *fakePlatformRepo) RecentlyActiveProgress(ctx context.Context, updatedSince time.Time) ([]domain.CourseProgress, error) {
	if f.recentlyActiveFn != nil {
		return f.recentlyActiveFn(ctx, updatedSince)
	}
	return nil, nil
}

func (f *fakePlatformRepo) CountUsersRegistered(ctx context.Context, from, to time.Time) (int64, error) {
	if f.countUsersRegisteredFn != nil {
		return f.countUsersRegisteredFn(ctx, from, to)
	}
	return 0, nil
}

func (f *fakePlatformRepo) CountEnrollments(ctx context.Context, from, to time.Time) (int64, error) {
	if f.countEnrollmentsFn != nil {
		return f.countEnrollmentsFn(ctx, from, to)
	}
	return 0, nil
}

func (f *fakePlatformRepo) CountCompletions(ctx context.Context, from, to time.Time) (int64, error) {
	if f.countCompletionsFn != nil {
		return f.countCompletionsFn(ctx, from, to)
	}
	return 0, nil
}

func (f *fakePlatformRepo) CountActiveUsers(ctx context.Context, from, to time.Time) (int64, error) {
	if f.countActiveUsersFn != nil {
		return f.countActiveUsersFn(ctx, from, to)
	}
	return 0, nil
}

func (f *fakePlatformRepo) TopCourses(ctx context.Context, from, to time.Time, limit int) ([]repository.CourseStat, error) {
	if f.topCoursesFn != nil {
		return f.topCoursesFn(ctx, from, to, limit)
	}
	return nil, nil
}

func (f *fakePlatformRepo) DeleteActivityOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deleteActivityOlderFn != nil {
		return f.deleteActivityOlderFn(ctx, cutoff)
	}
	return 0, nil
}

func (f *fakePlatformRepo) DeleteAnalyticsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.deleteAnalyticsOlderFn != nil {
		return f.deleteAnalyticsOlderFn(ctx, cutoff)
	}
	return 0, nil
}

type fakeEmailTransport struct {
	sendFn func(ctx context.Context, to, subject, body string) (*provider.ProviderResponse, error)
}

func (f *fakeEmailTransport) Send(ctx context.Context, to, subject, body string) (*provider.ProviderResponse, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, to, subject, body)
	}
	return &provider.ProviderResponse{StatusCode: 200}, nil
}

type fakePushTransport struct {
	sendToDeviceFn func(ctx context.Context, token, title, message string, payload map[string]any) (*provider.ProviderResponse, error)
}

func (f *fakePushTransport) SendToDevice(ctx context.Context, token, title, message string, payload map[string]any) (*provider.ProviderResponse, error) {
	if f.sendToDeviceFn != nil {
		return f.sendToDeviceFn(ctx, token, title, message, payload)
	}
	return &provider.ProviderResponse{StatusCode: 200}, nil
}
