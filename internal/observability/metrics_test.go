package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncNotificationSent("EMAIL")
	metrics.IncNotificationFailed("email", "retry_exhausted")
	metrics.ObserveNotificationSendDuration("email", 120*time.Millisecond)
	metrics.IncWorkerInFlight("email")
	metrics.DecWorkerInFlight("email")
	metrics.IncRetryScheduled("email")

	if got := testutil.ToFloat64(metrics.notificationsSentTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("notifications_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsFailedTotal.WithLabelValues("email", "retry_exhausted")); got != 1 {
		t.Fatalf("notifications_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("email")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
}

func TestMetricsGatewayAndSchedulerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncLiveConnections()
	metrics.IncLiveConnections()
	metrics.DecLiveConnections()
	metrics.IncLivePush("delivered")
	metrics.IncCampaignReminder("stalled_progress")
	metrics.IncReportGenerated("daily")
	metrics.AddSweptDue(3)

	if got := testutil.ToFloat64(metrics.liveConnections); got != 1 {
		t.Fatalf("live_connections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.livePushesTotal.WithLabelValues("delivered")); got != 1 {
		t.Fatalf("live_pushes_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.campaignRemindersTotal.WithLabelValues("stalled_progress")); got != 1 {
		t.Fatalf("campaign_reminders_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.reportsGeneratedTotal.WithLabelValues("daily")); got != 1 {
		t.Fatalf("reports_generated_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.sweptDueTotal); got != 3 {
		t.Fatalf("swept_due_total = %v, want 3", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	if _, err := app.Test(req); err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
