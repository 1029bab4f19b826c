package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/queue"
)

func newTestScheduler(t *testing.T, repo *fakeNotificationRepo, publisher *fakePublisher, live *fakeLivePusher) *Scheduler {
	t.Helper()

	if repo == nil {
		repo = &fakeNotificationRepo{}
	}
	if publisher == nil {
		publisher = &fakePublisher{}
	}

	var liveIface LivePusher
	if live != nil {
		liveIface = live
	}

	s, err := NewScheduler(repo, publisher, liveIface, nil, time.Minute, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func dueNotification(id string, channel domain.Channel) domain.Notification {
	scheduledAt := time.Unix(1_699_999_000, 0)
	return domain.Notification{
		ID:          id,
		RecipientID: testRecipientID,
		Channel:     channel,
		Priority:    domain.PriorityMedium,
		Title:       "Scheduled reminder",
		Message:     "Your session starts soon",
		Status:      domain.StatusPending,
		ScheduledAt: &scheduledAt,
		MaxRetries:  domain.DefaultMaxRetry,
	}
}

func TestSweepDuePublishesQueuedChannels(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		claimDueForDispatchFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return []domain.Notification{
				dueNotification("n1", domain.ChannelEmail),
				dueNotification("n2", domain.ChannelPush),
			}, nil
		},
	}
	publisher := &fakePublisher{}
	s := newTestScheduler(t, repo, publisher, nil)

	if err := s.SweepDue(context.Background()); err != nil {
		t.Fatalf("SweepDue() error = %v", err)
	}

	jobs := publisher.jobs()
	if len(jobs) != 2 {
		t.Fatalf("published jobs = %d, want 2", len(jobs))
	}
	if jobs[0].queue != "email" || jobs[1].queue != "push" {
		t.Fatalf("queues = %q, %q", jobs[0].queue, jobs[1].queue)
	}
	if jobs[0].msg.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", jobs[0].msg.Attempt)
	}
}

func TestSweepDueDeliversScheduledInApp(t *testing.T) {
	t.Parallel()

	var markedSent []string
	repo := &fakeNotificationRepo{
		claimDueForDispatchFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return []domain.Notification{dueNotification("n1", domain.ChannelInApp)}, nil
		},
		markSentFn: func(ctx context.Context, id string, sentAt time.Time) error {
			markedSent = append(markedSent, id)
			return nil
		},
		countUnreadFn: func(ctx context.Context, recipientID string) (int64, error) {
			return 5, nil
		},
	}
	publisher := &fakePublisher{}
	live := &fakeLivePusher{}
	s := newTestScheduler(t, repo, publisher, live)

	if err := s.SweepDue(context.Background()); err != nil {
		t.Fatalf("SweepDue() error = %v", err)
	}

	if len(markedSent) != 1 || markedSent[0] != "n1" {
		t.Fatalf("MarkSent calls = %v, want [n1]", markedSent)
	}
	if len(publisher.jobs()) != 0 {
		t.Fatal("in-app rows must not reach the broker")
	}

	pushed := live.pushedNotifications()
	if len(pushed) != 1 {
		t.Fatalf("live pushes = %d, want 1", len(pushed))
	}
	if pushed[0].Status != domain.StatusSent || pushed[0].SentAt == nil {
		t.Fatalf("pushed status = %s, sentAt = %v", pushed[0].Status, pushed[0].SentAt)
	}
	if count, ok := live.unreadCount(testRecipientID); !ok || count != 5 {
		t.Fatalf("unread refresh = %d (%v), want 5", count, ok)
	}
}

func TestSweepDueReleasesClaimOnPublishFailure(t *testing.T) {
	t.Parallel()

	var cleared []string
	repo := &fakeNotificationRepo{
		claimDueForDispatchFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return []domain.Notification{
				dueNotification("n1", domain.ChannelEmail),
				dueNotification("n2", domain.ChannelEmail),
			}, nil
		},
		clearQueuedAtFn: func(ctx context.Context, id string) error {
			cleared = append(cleared, id)
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.JobMessage) error {
			if msg.NotificationID == "n1" {
				return errors.New("broker unavailable")
			}
			return nil
		},
	}
	s := newTestScheduler(t, repo, publisher, nil)

	if err := s.SweepDue(context.Background()); err != nil {
		t.Fatalf("SweepDue() error = %v; publish failures are per-row", err)
	}

	if len(cleared) != 1 || cleared[0] != "n1" {
		t.Fatalf("released claims = %v, want [n1]", cleared)
	}
	if jobs := publisher.jobs(); len(jobs) != 1 || jobs[0].msg.NotificationID != "n2" {
		t.Fatalf("published = %v, want only n2", jobs)
	}
}

func TestSweepDueEmptyBatch(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{}
	s := newTestScheduler(t, &fakeNotificationRepo{}, publisher, nil)

	if err := s.SweepDue(context.Background()); err != nil {
		t.Fatalf("SweepDue() error = %v", err)
	}
	if len(publisher.jobs()) != 0 {
		t.Fatal("nothing due, nothing published")
	}
}

func TestSweepDueClaimError(t *testing.T) {
	t.Parallel()

	repo := &fakeNotificationRepo{
		claimDueForDispatchFn: func(ctx context.Context, limit int) ([]domain.Notification, error) {
			return nil, errors.New("connection reset")
		},
	}
	s := newTestScheduler(t, repo, nil, nil)

	if err := s.SweepDue(context.Background()); err == nil {
		t.Fatal("claim errors should surface to the caller")
	}
}
