package repository

import (
	"encoding/json"
	"time"

	"github.com/coursehub/notification-engine/internal/domain"
)

// NotificationModel is the persistence model for the notifications table.
// The payload is stored as an opaque serialized blob and deserialized on
// read.
type NotificationModel struct {
	ID           string          `gorm:"type:uuid;primaryKey"`
	RecipientID  string          `gorm:"type:uuid;not null"`
	Channel      domain.Channel  `gorm:"type:varchar(10);not null"`
	Priority     domain.Priority `gorm:"type:varchar(10);not null"`
	Title        string          `gorm:"type:varchar(255);not null"`
	Message      string          `gorm:"type:text;not null"`
	Payload      *string         `gorm:"type:text"`
	Status       domain.Status   `gorm:"type:varchar(20);not null"`
	Campaign     *string         `gorm:"type:varchar(50)"`
	ScheduledAt  *time.Time      `gorm:"type:timestamptz"`
	SentAt       *time.Time      `gorm:"type:timestamptz"`
	ReadAt       *time.Time      `gorm:"type:timestamptz"`
	ErrorMessage *string         `gorm:"type:text"`
	RetryCount   int             `gorm:"not null;default:0"`
	MaxRetries   int             `gorm:"not null;default:3"`
	NextRetryAt  *time.Time
	QueuedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (NotificationModel) TableName() string {
	return "notifications"
}

// TemplateModel is the persistence model for notification_templates.
type TemplateModel struct {
	ID        string         `gorm:"type:uuid;primaryKey"`
	Name      string         `gorm:"type:varchar(100);not null;uniqueIndex"`
	Channel   domain.Channel `gorm:"type:varchar(10);not null"`
	Title     string         `gorm:"type:varchar(255);not null"`
	Message   string         `gorm:"type:text;not null"`
	Active    bool           `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TemplateModel) TableName() string {
	return "notification_templates"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID             string         `gorm:"type:uuid;primaryKey"`
	NotificationID string         `gorm:"type:uuid;not null"`
	Channel        domain.Channel `gorm:"type:varchar(10);not null"`
	AttemptNumber  int            `gorm:"not null"`
	Error          *string        `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

func notificationModelFromDomain(n *domain.Notification) *NotificationModel {
	if n == nil {
		return nil
	}

	return &NotificationModel{
		ID:           n.ID,
		RecipientID:  n.RecipientID,
		Channel:      n.Channel,
		Priority:     n.Priority,
		Title:        n.Title,
		Message:      n.Message,
		Payload:      marshalPayload(n.Payload),
		Status:       n.Status,
		Campaign:     n.Campaign,
		ScheduledAt:  n.ScheduledAt,
		SentAt:       n.SentAt,
		ReadAt:       n.ReadAt,
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		MaxRetries:   n.MaxRetries,
		NextRetryAt:  n.NextRetryAt,
		QueuedAt:     n.QueuedAt,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func notificationModelToDomain(m *NotificationModel) *domain.Notification {
	if m == nil {
		return nil
	}

	return &domain.Notification{
		ID:           m.ID,
		RecipientID:  m.RecipientID,
		Channel:      m.Channel,
		Priority:     m.Priority,
		Title:        m.Title,
		Message:      m.Message,
		Payload:      unmarshalPayload(m.Payload),
		Status:       m.Status,
		Campaign:     m.Campaign,
		ScheduledAt:  m.ScheduledAt,
		SentAt:       m.SentAt,
		ReadAt:       m.ReadAt,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		MaxRetries:   m.MaxRetries,
		NextRetryAt:  m.NextRetryAt,
		QueuedAt:     m.QueuedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// marshalPayload serializes the payload map. Payloads have already been
// bound-checked by the validator, so marshal failures do not occur for
// persisted records.
func marshalPayload(payload map[string]any) *string {
	if len(payload) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	s := string(raw)
	return &s
}

func unmarshalPayload(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(*raw), &payload); err != nil {
		return nil
	}
	return payload
}

func templateModelFromDomain(t *domain.NotificationTemplate) *TemplateModel {
	if t == nil {
		return nil
	}

	return &TemplateModel{
		ID:        t.ID,
		Name:      t.Name,
		Channel:   t.Channel,
		Title:     t.Title,
		Message:   t.Message,
		Active:    t.Active,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.NotificationTemplate {
	if m == nil {
		return nil
	}

	return &domain.NotificationTemplate{
		ID:        m.ID,
		Name:      m.Name,
		Channel:   m.Channel,
		Title:     m.Title,
		Message:   m.Message,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:             a.ID,
		NotificationID: a.NotificationID,
		Channel:        a.Channel,
		AttemptNumber:  a.AttemptNumber,
		Error:          a.Error,
		CreatedAt:      a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:             m.ID,
		NotificationID: m.NotificationID,
		Channel:        m.Channel,
		AttemptNumber:  m.AttemptNumber,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
