package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/repository"
	"github.com/coursehub/notification-engine/internal/service"
	"github.com/coursehub/notification-engine/internal/validator"
)

const (
	defaultPage       = 1
	defaultPageSize   = 50
	maxPageSize       = 100
	defaultUnreadSize = 20

	// userIDHeader carries the caller identity set by the platform's API
	// gateway after session validation.
	userIDHeader = "X-User-ID"
)

type NotificationService interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	CreateBulk(ctx context.Context, notifications []domain.Notification) (*service.BulkResult, error)
	SendFromTemplate(ctx context.Context, req service.TemplateSend) (*domain.Notification, error)
	GetOwned(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	ListMine(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
	Stats(ctx context.Context, recipientID string) (*service.StatsSummary, error)
}

type NotificationHandler struct {
	service NotificationService
	now     func() time.Time
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service, now: time.Now}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Post("/notifications/bulk", h.CreateBulk)
	v1.Post("/notifications/from-template", h.SendFromTemplate)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/unread", h.ListUnread)
	v1.Get("/notifications/unread/count", h.CountUnread)
	v1.Get("/notifications/stats", h.GetStats)
	v1.Post("/notifications/read-all", h.MarkAllRead)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Post("/notifications/:id/read", h.MarkRead)
	v1.Delete("/notifications/:id", h.DeleteNotification)

	return nil
}

type createNotificationRequest struct {
	RecipientID string         `json:"recipientId"`
	Channel     string         `json:"channel"`
	Priority    string         `json:"priority"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Payload     map[string]any `json:"payload,omitempty"`
	ScheduledAt *string        `json:"scheduledAt,omitempty"`
	MaxRetries  *int           `json:"maxRetries,omitempty"`
}

type createBulkRequest struct {
	RecipientIDs []string       `json:"recipientIds"`
	Channel      string         `json:"channel"`
	Priority     string         `json:"priority"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload,omitempty"`
	ScheduledAt  *string        `json:"scheduledAt,omitempty"`
	MaxRetries   *int           `json:"maxRetries,omitempty"`
}

type sendFromTemplateRequest struct {
	TemplateName string            `json:"templateName"`
	RecipientID  string            `json:"recipientId"`
	Variables    map[string]string `json:"variables,omitempty"`
	Priority     string            `json:"priority,omitempty"`
	Payload      map[string]any    `json:"payload,omitempty"`
	ScheduledAt  *string           `json:"scheduledAt,omitempty"`
	MaxRetries   *int              `json:"maxRetries,omitempty"`
}

type notificationResponse struct {
	ID           string         `json:"id"`
	RecipientID  string         `json:"recipientId"`
	Channel      string         `json:"channel"`
	Priority     string         `json:"priority"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Payload      map[string]any `json:"payload,omitempty"`
	Status       string         `json:"status"`
	Campaign     *string        `json:"campaign,omitempty"`
	ScheduledAt  *time.Time     `json:"scheduledAt,omitempty"`
	SentAt       *time.Time     `json:"sentAt,omitempty"`
	ReadAt       *time.Time     `json:"readAt,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
	RetryCount   int            `json:"retryCount"`
	MaxRetries   int            `json:"maxRetries"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type createBulkResponse struct {
	Requested  int                    `json:"requested"`
	Successful []notificationResponse `json:"successful"`
	Failed     []service.BulkFailure  `json:"failed,omitempty"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := validator.ValidateCreate(validator.CreateRequest{
		RecipientID: req.RecipientID,
		Channel:     req.Channel,
		Priority:    req.Priority,
		Title:       req.Title,
		Message:     req.Message,
		Payload:     req.Payload,
		ScheduledAt: req.ScheduledAt,
		MaxRetries:  req.MaxRetries,
	}, h.now().UTC())
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), notification)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) CreateBulk(c *fiber.Ctx) error {
	var req createBulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notifications, err := validator.ValidateBulk(validator.BulkRequest{
		RecipientIDs: req.RecipientIDs,
		Channel:      req.Channel,
		Priority:     req.Priority,
		Title:        req.Title,
		Message:      req.Message,
		Payload:      req.Payload,
		ScheduledAt:  req.ScheduledAt,
		MaxRetries:   req.MaxRetries,
	}, h.now().UTC())
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.service.CreateBulk(c.Context(), notifications)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(createBulkResponse{
		Requested:  len(notifications),
		Successful: toNotificationResponses(result.Successful),
		Failed:     result.Failed,
	})
}

func (h *NotificationHandler) SendFromTemplate(c *fiber.Ctx) error {
	var req sendFromTemplateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.service.SendFromTemplate(c.Context(), service.TemplateSend{
		TemplateName: req.TemplateName,
		RecipientID:  req.RecipientID,
		Variables:    req.Variables,
		Priority:     req.Priority,
		Payload:      req.Payload,
		ScheduledAt:  req.ScheduledAt,
		MaxRetries:   req.MaxRetries,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	notification, err := h.service.GetOwned(c.Context(), c.Params("id"), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	params, err := parseListParams(c, userID)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.ListMine(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *NotificationHandler) ListUnread(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	limit := c.QueryInt("limit", defaultUnreadSize)
	if limit < 1 || limit > maxPageSize {
		return toHTTPError(fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxPageSize))
	}

	notifications, err := h.service.ListUnread(c.Context(), userID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": toNotificationResponses(notifications),
	})
}

func (h *NotificationHandler) CountUnread(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	count, err := h.service.CountUnread(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"unread": count})
}

func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	notification, err := h.service.MarkRead(c.Context(), c.Params("id"), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	updated, err := h.service.MarkAllRead(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"updated": updated})
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Context(), c.Params("id"), userID); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) GetStats(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return err
	}

	stats, err := h.service.Stats(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

func callerID(c *fiber.Ctx) (string, error) {
	userID := strings.TrimSpace(c.Get(userIDHeader))
	if userID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "missing user identity")
	}
	return userID, nil
}

func parseListParams(c *fiber.Ctx, recipientID string) (repository.ListParams, error) {
	params := repository.ListParams{
		RecipientID: recipientID,
		Page:        c.QueryInt("page", defaultPage),
		PageSize:    c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	return params, nil
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for i := range notifications {
		responses = append(responses, toNotificationResponse(&notifications[i]))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:           n.ID,
		RecipientID:  n.RecipientID,
		Channel:      n.Channel.String(),
		Priority:     n.Priority.String(),
		Title:        n.Title,
		Message:      n.Message,
		Payload:      n.Payload,
		Status:       n.Status.String(),
		Campaign:     n.Campaign,
		ScheduledAt:  n.ScheduledAt,
		SentAt:       n.SentAt,
		ReadAt:       n.ReadAt,
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		MaxRetries:   n.MaxRetries,
		CreatedAt:    n.CreatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrPermission):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnsupportedChannel):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return err
	}
}
