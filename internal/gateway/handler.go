package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/repository"
)

const (
	actionMarkRead    = "mark_read"
	actionMarkAllRead = "mark_all_read"
	actionListUnread  = "list_unread"
	actionList        = "list"

	actionTimeout       = 5 * time.Second
	unreadListLimit     = 20
	defaultListPageSize = 20
	maxListPageSize     = 100
)

// NotificationActions are the service operations clients can trigger
// over the socket.
type NotificationActions interface {
	ListMine(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// clientFrame is the wire format for client-to-server frames.
type clientFrame struct {
	Action   string `json:"action"`
	ID       string `json:"id,omitempty"`
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
}

// listPayload is the reply to a paginated list action.
type listPayload struct {
	Items    []notificationPayload `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"pageSize"`
}

type Handler struct {
	hub     *Hub
	service NotificationActions
	secret  []byte
	logger  *zap.Logger
}

func NewHandler(hub *Hub, service NotificationActions, secret []byte, logger *zap.Logger) (*Handler, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("session token secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{hub: hub, service: service, secret: secret, logger: logger}, nil
}

// RegisterRoutes mounts the websocket endpoint. Authentication happens
// during the HTTP upgrade so an invalid token never opens a socket.
func RegisterRoutes(router fiber.Router, hub *Hub, service NotificationActions, secret []byte, logger *zap.Logger) error {
	h, err := NewHandler(hub, service, secret, logger)
	if err != nil {
		return err
	}

	router.Use("/ws", h.upgrade)
	router.Get("/ws", websocket.New(h.serve))
	router.Post("/v1/announcements", h.announce)

	return nil
}

type announceRequest struct {
	Message string `json:"message"`
}

// announce pushes a platform-wide notice to every connected session.
// Announcements are ephemeral: nothing is persisted, so disconnected
// users simply miss them.
func (h *Handler) announce(c *fiber.Ctx) error {
	var req announceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}

	delivered := h.hub.BroadcastAll(message)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"delivered": delivered})
}

func (h *Handler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	userID, err := UserIDFromToken(sessionToken(c), h.secret)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid session token")
	}

	c.Locals("userId", userID)
	return c.Next()
}

func sessionToken(c *fiber.Ctx) string {
	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token
	}
	return strings.TrimSpace(strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer "))
}

// serve runs one client session: an unread snapshot on connect, then a
// read loop of client actions. Every action reply includes the refreshed
// unread count so client badges never drift.
func (h *Handler) serve(conn *websocket.Conn) {
	userID, _ := conn.Locals("userId").(string)
	if userID == "" {
		_ = conn.Close()
		return
	}

	sess := h.hub.Register(userID, conn)
	defer func() {
		h.hub.Unregister(userID, sess)
		_ = conn.Close()
	}()

	h.sendUnreadCount(sess, userID)

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		h.handleFrame(sess, userID, frame)
	}
}

func (h *Handler) handleFrame(sess *session, userID string, frame clientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch frame.Action {
	case actionMarkRead:
		if _, err := h.service.MarkRead(ctx, frame.ID, userID); err != nil {
			h.sendError(sess, err)
			return
		}
		h.sendUnreadCount(sess, userID)

	case actionMarkAllRead:
		if _, err := h.service.MarkAllRead(ctx, userID); err != nil {
			h.sendError(sess, err)
			return
		}
		h.sendUnreadCount(sess, userID)

	case actionList:
		params := repository.ListParams{
			RecipientID: userID,
			Page:        frame.Page,
			PageSize:    frame.PageSize,
		}
		if params.Page < 1 {
			params.Page = 1
		}
		if params.PageSize < 1 {
			params.PageSize = defaultListPageSize
		}
		if params.PageSize > maxListPageSize {
			params.PageSize = maxListPageSize
		}

		notifications, total, err := h.service.ListMine(ctx, params)
		if err != nil {
			h.sendError(sess, err)
			return
		}
		items := make([]notificationPayload, 0, len(notifications))
		for i := range notifications {
			items = append(items, notificationEvent(&notifications[i]))
		}
		_ = sess.send(Event{Type: "notification_list", Data: listPayload{
			Items:    items,
			Total:    total,
			Page:     params.Page,
			PageSize: params.PageSize,
		}})
		h.sendUnreadCount(sess, userID)

	case actionListUnread:
		notifications, err := h.service.ListUnread(ctx, userID, unreadListLimit)
		if err != nil {
			h.sendError(sess, err)
			return
		}
		payload := make([]notificationPayload, 0, len(notifications))
		for i := range notifications {
			payload = append(payload, notificationEvent(&notifications[i]))
		}
		_ = sess.send(Event{Type: "unread_list", Data: payload})
		h.sendUnreadCount(sess, userID)

	default:
		h.sendError(sess, fmt.Errorf("unknown action %q", frame.Action))
	}
}

func (h *Handler) sendUnreadCount(sess *session, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	count, err := h.service.CountUnread(ctx, userID)
	if err != nil {
		h.logger.Warn("failed to load unread count for session",
			zap.String("userId", userID),
			zap.Error(err),
		)
		return
	}

	_ = sess.send(Event{Type: eventUnreadCount, Data: map[string]int64{"unread": count}})
}

func (h *Handler) sendError(sess *session, err error) {
	_ = sess.send(Event{Type: "error", Data: map[string]string{"error": err.Error()}})
}
