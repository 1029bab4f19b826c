package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursehub/notification-engine/internal/domain"
)

type ListParams struct {
	RecipientID string
	Page        int
	PageSize    int
}

type ChannelCount struct {
	Channel domain.Channel `gorm:"column:channel"`
	Count   int64          `gorm:"column:count"`
}

type StatusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	CreateBatch(ctx context.Context, notifications []*domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetOwned(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	ListByRecipient(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	CountByChannel(ctx context.Context, recipientID string) ([]ChannelCount, error)
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
	MarkQueued(ctx context.Context, id string, at time.Time) error
	ClearQueuedAt(ctx context.Context, id string) error
	ClaimDueForDispatch(ctx context.Context, limit int) ([]domain.Notification, error)
	LockForDispatch(ctx context.Context, id string) (*domain.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkDelivered(ctx context.Context, id string, sentAt time.Time) error
	ScheduleRetry(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.Notification, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	HasRecentCampaign(ctx context.Context, recipientID, campaign string, since time.Time) (bool, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) CreateBatch(ctx context.Context, notifications []*domain.Notification) error {
	models := make([]NotificationModel, 0, len(notifications))
	modelIndexes := make([]int, 0, len(notifications))
	for i, n := range notifications {
		model := notificationModelFromDomain(n)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(notifications) && notifications[idx] != nil {
			*notifications[idx] = *notificationModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// GetOwned resolves an id and enforces ownership. An existing record
// owned by someone else yields ErrPermission, not ErrNotFound, so
// callers can tell the two apart.
func (r *GormNotificationRepo) GetOwned(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	notification, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification.RecipientID != recipientID {
		return nil, domain.ErrPermission
	}
	return notification, nil
}

func (r *GormNotificationRepo) ListByRecipient(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ?", params.RecipientID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

func (r *GormNotificationRepo) ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if limit < 1 {
		limit = 50
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status IN ? AND read_at IS NULL",
			recipientID, []domain.Status{domain.StatusSent, domain.StatusDelivered}).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND status IN ? AND read_at IS NULL",
			recipientID, []domain.Status{domain.StatusSent, domain.StatusDelivered}).
		Count(&count).Error
	return count, err
}

func (r *GormNotificationRepo) CountByChannel(ctx context.Context, recipientID string) ([]ChannelCount, error) {
	var counts []ChannelCount
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Select("channel, COUNT(*) as count").
		Where("recipient_id = ?", recipientID).
		Group("channel").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormNotificationRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormNotificationRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  domain.StatusRead,
			"read_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND status IN ? AND read_at IS NULL",
			recipientID, []domain.Status{domain.StatusSent, domain.StatusDelivered}).
		Updates(map[string]any{
			"status":  domain.StatusRead,
			"read_at": at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormNotificationRepo) Delete(ctx context.Context, id, recipientID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&NotificationModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkQueued(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("queued_at", at).Error
}

func (r *GormNotificationRepo) ClearQueuedAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("queued_at", nil).Error
}

// ClaimDueForDispatch picks up to limit due PENDING rows that are not yet
// enqueued and stamps queued_at in the same statement. SKIP LOCKED keeps
// two overlapping sweeps from claiming the same rows, so a notification
// is never published twice.
func (r *GormNotificationRepo) ClaimDueForDispatch(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 || limit > domain.DispatchBatchCap {
		limit = domain.DispatchBatchCap
	}

	var models []NotificationModel
	err := r.db.WithContext(ctx).Raw(`
		UPDATE notifications SET queued_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = ? AND queued_at IS NULL AND next_retry_at IS NULL
			  AND scheduled_at IS NOT NULL AND scheduled_at <= NOW()
			ORDER BY scheduled_at ASC
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`, domain.StatusPending, limit).
		Scan(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

// LockForDispatch row-locks a notification for a worker attempt. Nil
// result means the record left PENDING in the meantime; the worker acks
// and skips.
func (r *GormNotificationRepo) LockForDispatch(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if model.Status != domain.StatusPending {
		return nil, nil
	}

	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  domain.StatusSent,
			"sent_at": sentAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) MarkDelivered(ctx context.Context, id string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusDelivered,
			"sent_at":       sentAt,
			"next_retry_at": nil,
			"error_message": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) ScheduleRetry(ctx context.Context, id, errMsg string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": errMsg,
			"next_retry_at": nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkFailed finalizes a notification. retry_count is pinned to
// max_retries so FAILED always satisfies retryCount == maxRetries, even
// for permanent errors that never consumed all attempts.
func (r *GormNotificationRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"error_message": errMsg,
			"retry_count":   gorm.Expr("max_retries"),
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", domain.StatusPending, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

func (r *GormNotificationRepo) HasRecentCampaign(ctx context.Context, recipientID, campaign string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("recipient_id = ? AND campaign = ? AND created_at >= ?", recipientID, campaign, since).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
