// Package validator sanitizes and bound-checks inbound notification
// requests. Every function is pure: no I/O, no clocks (callers pass now).
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursehub/notification-engine/internal/domain"
)

const (
	// Scheduling bounds: a small tolerance into the past absorbs clock
	// skew between callers and the engine; one year bounds the future.
	maxScheduleAhead  = 365 * 24 * time.Hour
	pastScheduleGrace = 5 * time.Minute
)

var (
	markupTagPattern = regexp.MustCompile(`<[^>]*>`)
	strippedChars    = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

	// Payload content that must never reach a transport.
	dangerousPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<\s*script`),
		regexp.MustCompile(`(?i)javascript\s*:`),
		regexp.MustCompile(`(?i)\bon\w+\s*=`),
		regexp.MustCompile(`(?i)\bdata\s*:`),
		regexp.MustCompile(`(?i)vbscript\s*:`),
	}
)

// CreateRequest is a raw single-notification creation request before
// sanitization. String fields arrive as the caller sent them.
type CreateRequest struct {
	RecipientID string
	Channel     string
	Priority    string
	Title       string
	Message     string
	Payload     map[string]any
	ScheduledAt *string
	MaxRetries  *int
}

// BulkRequest is a raw bulk-send request. The whole batch is rejected if
// any recipient is malformed; there is no partial filtering at this stage.
type BulkRequest struct {
	RecipientIDs []string
	Channel      string
	Priority     string
	Title        string
	Message      string
	Payload      map[string]any
	ScheduledAt  *string
	MaxRetries   *int
}

// Sanitize strips markup-like tags and the characters <>'"& from s and
// trims surrounding whitespace. It is idempotent.
func Sanitize(s string) string {
	s = markupTagPattern.ReplaceAllString(s, "")
	s = strippedChars.Replace(s)
	return strings.TrimSpace(s)
}

// ValidateCreate turns a raw request into a domain notification in
// PENDING state, or fails with a wrapped domain.ErrValidation.
func ValidateCreate(req CreateRequest, now time.Time) (*domain.Notification, error) {
	if strings.TrimSpace(req.RecipientID) == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	if _, err := uuid.Parse(strings.TrimSpace(req.RecipientID)); err != nil {
		return nil, fmt.Errorf("%w: recipient id %q is not a valid identifier", domain.ErrValidation, req.RecipientID)
	}

	channel, priority, err := channelAndPriority(req.Channel, req.Priority)
	if err != nil {
		return nil, err
	}

	title := Sanitize(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if titleLen := len([]rune(title)); titleLen > domain.MaxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters (got %d)",
			domain.ErrValidation, domain.MaxTitleLen, titleLen)
	}

	message := Sanitize(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if msgLen := len([]rune(message)); msgLen > domain.MaxMessageLen {
		return nil, fmt.Errorf("%w: message exceeds %d characters (got %d)",
			domain.ErrValidation, domain.MaxMessageLen, msgLen)
	}

	if err := ValidatePayload(req.Payload); err != nil {
		return nil, err
	}

	scheduledAt, err := parseScheduledAt(req.ScheduledAt, now)
	if err != nil {
		return nil, err
	}

	maxRetries := domain.DefaultMaxRetry
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
		if maxRetries < domain.MinMaxRetries || maxRetries > domain.MaxMaxRetries {
			return nil, fmt.Errorf("%w: maxRetries must be between %d and %d (got %d)",
				domain.ErrValidation, domain.MinMaxRetries, domain.MaxMaxRetries, maxRetries)
		}
	}

	return &domain.Notification{
		RecipientID: strings.TrimSpace(req.RecipientID),
		Channel:     channel,
		Priority:    priority,
		Title:       title,
		Message:     message,
		Payload:     req.Payload,
		Status:      domain.StatusPending,
		ScheduledAt: scheduledAt,
		MaxRetries:  maxRetries,
	}, nil
}

// ValidateBulk validates a bulk-send request wholesale: one malformed
// recipient rejects the entire batch.
func ValidateBulk(req BulkRequest, now time.Time) ([]domain.Notification, error) {
	if len(req.RecipientIDs) == 0 {
		return nil, fmt.Errorf("%w: recipient list is required", domain.ErrValidation)
	}
	if len(req.RecipientIDs) > domain.MaxBatchSize {
		return nil, fmt.Errorf("%w: recipient list exceeds %d entries (got %d)",
			domain.ErrValidation, domain.MaxBatchSize, len(req.RecipientIDs))
	}

	for _, id := range req.RecipientIDs {
		if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
			return nil, fmt.Errorf("%w: recipient id %q is not a valid identifier", domain.ErrValidation, id)
		}
	}

	notifications := make([]domain.Notification, 0, len(req.RecipientIDs))
	for _, id := range req.RecipientIDs {
		n, err := ValidateCreate(CreateRequest{
			RecipientID: id,
			Channel:     req.Channel,
			Priority:    req.Priority,
			Title:       req.Title,
			Message:     req.Message,
			Payload:     req.Payload,
			ScheduledAt: req.ScheduledAt,
			MaxRetries:  req.MaxRetries,
		}, now)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}

	return notifications, nil
}

// ValidatePayload bound-checks the serialized payload and rejects
// known-dangerous content with a security validation error.
func ValidatePayload(payload map[string]any) error {
	if payload == nil {
		return nil
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: payload is not serializable: %v", domain.ErrValidation, err)
	}
	if len(serialized) > domain.MaxPayloadLen {
		return fmt.Errorf("%w: serialized payload exceeds %d characters (got %d)",
			domain.ErrValidation, domain.MaxPayloadLen, len(serialized))
	}

	for _, pattern := range dangerousPatterns {
		if pattern.Match(serialized) {
			return fmt.Errorf("%w: payload contains potentially dangerous content", domain.ErrValidation)
		}
	}

	return nil
}

func channelAndPriority(rawChannel, rawPriority string) (domain.Channel, domain.Priority, error) {
	channel := domain.ChannelInApp
	if strings.TrimSpace(rawChannel) != "" {
		parsed, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return "", "", err
		}
		channel = parsed
	}

	priority := domain.PriorityMedium
	if strings.TrimSpace(rawPriority) != "" {
		parsed, err := domain.ParsePriorityFromString(rawPriority)
		if err != nil {
			return "", "", err
		}
		priority = parsed
	}

	return channel, priority, nil
}

func parseScheduledAt(raw *string, now time.Time) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}

	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("%w: scheduledAt %q is not a valid RFC3339 timestamp", domain.ErrValidation, *raw)
	}

	if parsed.After(now.Add(maxScheduleAhead)) {
		return nil, fmt.Errorf("%w: scheduledAt may not be more than 1 year in the future", domain.ErrValidation)
	}
	if parsed.Before(now.Add(-pastScheduleGrace)) {
		return nil, fmt.Errorf("%w: scheduledAt may not be more than %s in the past", domain.ErrValidation, pastScheduleGrace)
	}

	return &parsed, nil
}
