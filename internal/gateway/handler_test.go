package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/repository"
)

type fakeActions struct {
	listMineFn    func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	listUnreadFn  func(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
	countUnreadFn func(ctx context.Context, recipientID string) (int64, error)
	markReadFn    func(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	markAllReadFn func(ctx context.Context, recipientID string) (int64, error)
}

func (f *fakeActions) ListMine(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listMineFn != nil {
		return f.listMineFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeActions) ListUnread(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	if f.listUnreadFn != nil {
		return f.listUnreadFn(ctx, recipientID, limit)
	}
	return nil, nil
}

func (f *fakeActions) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	if f.countUnreadFn != nil {
		return f.countUnreadFn(ctx, recipientID)
	}
	return 0, nil
}

func (f *fakeActions) MarkRead(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, id, recipientID)
	}
	return &domain.Notification{ID: id, RecipientID: recipientID, Status: domain.StatusRead}, nil
}

func (f *fakeActions) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, recipientID)
	}
	return 0, nil
}

func newTestHandler(t *testing.T, actions *fakeActions) (*Handler, *Hub) {
	t.Helper()

	hub := NewHub(nil, nil)
	h, err := NewHandler(hub, actions, testSecret, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	return h, hub
}

func lastEvent(t *testing.T, conn *fakeConn) Event {
	t.Helper()

	events := conn.received()
	if len(events) == 0 {
		t.Fatal("no events received")
	}
	return events[len(events)-1]
}

func TestHandleFrameMarkReadRefreshesUnreadCount(t *testing.T) {
	t.Parallel()

	var markedID string
	actions := &fakeActions{
		markReadFn: func(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
			markedID = id
			return &domain.Notification{ID: id, RecipientID: recipientID, Status: domain.StatusRead}, nil
		},
		countUnreadFn: func(ctx context.Context, recipientID string) (int64, error) {
			return 7, nil
		},
	}
	h, hub := newTestHandler(t, actions)

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: actionMarkRead, ID: "n1"})

	if markedID != "n1" {
		t.Fatalf("marked id = %q, want n1", markedID)
	}

	event := lastEvent(t, conn)
	if event.Type != eventUnreadCount {
		t.Fatalf("event type = %q, want unread_count", event.Type)
	}
	if data, ok := event.Data.(map[string]int64); !ok || data["unread"] != 7 {
		t.Fatalf("event data = %+v, want unread 7", event.Data)
	}
}

func TestHandleFrameMarkAllRead(t *testing.T) {
	t.Parallel()

	var recipient string
	actions := &fakeActions{
		markAllReadFn: func(ctx context.Context, recipientID string) (int64, error) {
			recipient = recipientID
			return 3, nil
		},
	}
	h, hub := newTestHandler(t, actions)

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: actionMarkAllRead})

	if recipient != "u1" {
		t.Fatalf("recipient = %q, want session owner", recipient)
	}
	if event := lastEvent(t, conn); event.Type != eventUnreadCount {
		t.Fatalf("event type = %q, want unread_count", event.Type)
	}
}

func TestHandleFrameListUnread(t *testing.T) {
	t.Parallel()

	actions := &fakeActions{
		listUnreadFn: func(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
			return []domain.Notification{
				{ID: "n1", Channel: domain.ChannelInApp, Priority: domain.PriorityLow, Title: "a", Message: "b"},
			}, nil
		},
	}
	h, hub := newTestHandler(t, actions)

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: actionListUnread})

	events := conn.received()
	if len(events) != 2 {
		t.Fatalf("events = %d, want list then unread count", len(events))
	}
	if events[0].Type != "unread_list" {
		t.Fatalf("first event = %q, want unread_list", events[0].Type)
	}
	payload, ok := events[0].Data.([]notificationPayload)
	if !ok || len(payload) != 1 || payload[0].ID != "n1" {
		t.Fatalf("list payload = %+v", events[0].Data)
	}
	if events[1].Type != eventUnreadCount {
		t.Fatalf("second event = %q, want unread_count", events[1].Type)
	}
}

func TestHandleFrameListPaginates(t *testing.T) {
	t.Parallel()

	var gotParams repository.ListParams
	actions := &fakeActions{
		listMineFn: func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
			gotParams = params
			return []domain.Notification{
				{ID: "n5", Channel: domain.ChannelEmail, Priority: domain.PriorityLow, Title: "a", Message: "b"},
			}, 41, nil
		},
	}
	h, hub := newTestHandler(t, actions)

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: actionList, Page: 2, PageSize: 10})

	if gotParams.RecipientID != "u1" || gotParams.Page != 2 || gotParams.PageSize != 10 {
		t.Fatalf("list params = %+v, want recipient u1 page 2 size 10", gotParams)
	}

	events := conn.received()
	if len(events) != 2 {
		t.Fatalf("events = %d, want list then unread count", len(events))
	}
	if events[0].Type != "notification_list" {
		t.Fatalf("first event = %q, want notification_list", events[0].Type)
	}
	payload, ok := events[0].Data.(listPayload)
	if !ok || payload.Total != 41 || payload.Page != 2 || payload.PageSize != 10 {
		t.Fatalf("list payload = %+v", events[0].Data)
	}
	if len(payload.Items) != 1 || payload.Items[0].ID != "n5" {
		t.Fatalf("list items = %+v", payload.Items)
	}
	if events[1].Type != eventUnreadCount {
		t.Fatalf("second event = %q, want unread_count", events[1].Type)
	}
}

func TestHandleFrameListClampsPagination(t *testing.T) {
	t.Parallel()

	var gotParams repository.ListParams
	actions := &fakeActions{
		listMineFn: func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
			gotParams = params
			return nil, 0, nil
		},
	}
	h, hub := newTestHandler(t, actions)

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: actionList})
	if gotParams.Page != 1 || gotParams.PageSize != defaultListPageSize {
		t.Fatalf("defaulted params = %+v", gotParams)
	}

	h.handleFrame(sess, "u1", clientFrame{Action: actionList, Page: -3, PageSize: 10_000})
	if gotParams.Page != 1 || gotParams.PageSize != maxListPageSize {
		t.Fatalf("clamped params = %+v", gotParams)
	}
}

func TestAnnounceBroadcastsToSessions(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)
	conn := &fakeConn{}
	hub.Register("u1", conn)

	app := fiber.New()
	if err := RegisterRoutes(app, hub, &fakeActions{}, testSecret, zap.NewNop()); err != nil {
		t.Fatalf("RegisterRoutes() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/announcements",
		strings.NewReader(`{"message":"maintenance at midnight"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	events := conn.received()
	if len(events) != 1 || events[0].Type != eventNotice {
		t.Fatalf("events = %+v, want one notice", events)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/announcements", strings.NewReader(`{"message":"  "}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for blank message", resp.StatusCode)
	}
}

func TestHandleFrameServiceErrorIsReported(t *testing.T) {
	t.Parallel()

	actions := &fakeActions{
		markReadFn: func(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
			return nil, errors.New("connection reset")
		},
	}
	h, hub := newTestHandler(t, actions)

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: actionMarkRead, ID: "n1"})

	if event := lastEvent(t, conn); event.Type != "error" {
		t.Fatalf("event type = %q, want error", event.Type)
	}
}

func TestHandleFrameUnknownAction(t *testing.T) {
	t.Parallel()

	h, hub := newTestHandler(t, &fakeActions{})

	conn := &fakeConn{}
	sess := hub.Register("u1", conn)

	h.handleFrame(sess, "u1", clientFrame{Action: "shout"})

	if event := lastEvent(t, conn); event.Type != "error" {
		t.Fatalf("event type = %q, want error", event.Type)
	}
}

func TestNewHandlerValidation(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil, nil)

	if _, err := NewHandler(nil, &fakeActions{}, testSecret, nil); err == nil {
		t.Fatal("nil hub should be rejected")
	}
	if _, err := NewHandler(hub, nil, testSecret, nil); err == nil {
		t.Fatal("nil service should be rejected")
	}
	if _, err := NewHandler(hub, &fakeActions{}, nil, nil); err == nil {
		t.Fatal("empty secret should be rejected")
	}
}
