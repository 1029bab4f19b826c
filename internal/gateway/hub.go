// Package gateway mirrors notification events to connected websocket
// sessions. Delivery is best-effort: the persisted record is the source
// of truth and a dropped frame is recovered on the next list call.
package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/observability"
)

// Event types pushed to clients.
const (
	eventNotification = "notification"
	eventUnreadCount  = "unread_count"
	eventNotice       = "notice"
)

// Event is the wire format for server-to-client frames.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// sessionConn is the subset of the websocket connection the hub needs.
// Tests substitute in-memory fakes.
type sessionConn interface {
	WriteJSON(v any) error
	Close() error
}

// session is one connected client. Writes are serialized per connection
// because websocket writers are not safe for concurrent use.
type session struct {
	conn sessionConn
	mu   sync.Mutex
}

func (s *session) send(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(event)
}

// Hub tracks live sessions per user. A user may hold several sessions
// (multiple tabs or devices); every push fans out to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string][]*session
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewHub(metrics *observability.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[string][]*session),
		metrics:  metrics,
		logger:   logger,
	}
}

// Register adds a connection for the user and returns the session handle
// used to unregister it.
func (h *Hub) Register(userID string, conn sessionConn) *session {
	s := &session{conn: conn}

	h.mu.Lock()
	h.sessions[userID] = append(h.sessions[userID], s)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncLiveConnections()
	}
	h.logger.Debug("websocket session registered", zap.String("userId", userID))

	return s
}

func (h *Hub) Unregister(userID string, s *session) {
	h.mu.Lock()
	remaining := h.sessions[userID][:0]
	for _, existing := range h.sessions[userID] {
		if existing != s {
			remaining = append(remaining, existing)
		}
	}
	if len(remaining) == 0 {
		delete(h.sessions, userID)
	} else {
		h.sessions[userID] = remaining
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.DecLiveConnections()
	}
	h.logger.Debug("websocket session unregistered", zap.String("userId", userID))
}

// Connections reports the number of live sessions for a user.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// PushNotification mirrors a freshly delivered notification to the
// recipient's sessions.
func (h *Hub) PushNotification(n *domain.Notification) {
	if n == nil {
		return
	}
	h.pushTo(n.RecipientID, Event{Type: eventNotification, Data: notificationEvent(n)})
}

// PushUnreadCount pushes the recipient's refreshed unread badge.
func (h *Hub) PushUnreadCount(recipientID string, count int64) {
	h.pushTo(recipientID, Event{Type: eventUnreadCount, Data: map[string]int64{"unread": count}})
}

// BroadcastAll sends a notice to every connected session, regardless of
// user, and reports how many sessions received it. Used for
// platform-wide announcements.
func (h *Hub) BroadcastAll(message string) int {
	h.mu.RLock()
	all := make([]*session, 0, len(h.sessions))
	for _, sessions := range h.sessions {
		all = append(all, sessions...)
	}
	h.mu.RUnlock()

	event := Event{Type: eventNotice, Data: map[string]string{"message": message}}
	delivered := 0
	for _, s := range all {
		if err := s.send(event); err != nil {
			h.recordPush("error")
			continue
		}
		h.recordPush("ok")
		delivered++
	}

	return delivered
}

func (h *Hub) pushTo(userID string, event Event) {
	h.mu.RLock()
	sessions := make([]*session, len(h.sessions[userID]))
	copy(sessions, h.sessions[userID])
	h.mu.RUnlock()

	if len(sessions) == 0 {
		return
	}

	for _, s := range sessions {
		if err := s.send(event); err != nil {
			h.logger.Debug("websocket push failed",
				zap.String("userId", userID),
				zap.Error(err),
			)
			h.recordPush("error")
			continue
		}
		h.recordPush("ok")
	}
}

func (h *Hub) recordPush(outcome string) {
	if h.metrics != nil {
		h.metrics.IncLivePush(outcome)
	}
}

type notificationPayload struct {
	ID       string         `json:"id"`
	Channel  string         `json:"channel"`
	Priority string         `json:"priority"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Payload  map[string]any `json:"payload,omitempty"`
	Campaign *string        `json:"campaign,omitempty"`
}

func notificationEvent(n *domain.Notification) notificationPayload {
	return notificationPayload{
		ID:       n.ID,
		Channel:  n.Channel.String(),
		Priority: n.Priority.String(),
		Title:    n.Title,
		Message:  n.Message,
		Payload:  n.Payload,
		Campaign: n.Campaign,
	}
}
