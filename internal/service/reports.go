package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/observability"
	"github.com/coursehub/notification-engine/internal/repository"
)

const topCourseLimit = 5

// ReportService generates the tiered platform reports and fans each out
// as one in-app notification per admin. Daily covers the core counters,
// weekly adds engagement, monthly adds the top-course ranking.
type ReportService struct {
	platform      repository.PlatformRepository
	notifications *NotificationService
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewReportService(
	platform repository.PlatformRepository,
	notifications *NotificationService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*ReportService, error) {
	if platform == nil {
		return nil, fmt.Errorf("platform repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReportService{
		platform:      platform,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (r *ReportService) RunDaily(ctx context.Context) error {
	return r.generate(ctx, "daily", 24*time.Hour)
}

func (r *ReportService) RunWeekly(ctx context.Context) error {
	return r.generate(ctx, "weekly", 7*24*time.Hour)
}

func (r *ReportService) RunMonthly(ctx context.Context) error {
	return r.generate(ctx, "monthly", 30*24*time.Hour)
}

func (r *ReportService) generate(ctx context.Context, period string, window time.Duration) error {
	to := r.now().UTC()
	from := to.Add(-window)

	registered, err := r.platform.CountUsersRegistered(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to count registrations: %w", err)
	}
	enrollments, err := r.platform.CountEnrollments(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to count enrollments: %w", err)
	}
	completions, err := r.platform.CountCompletions(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to count completions: %w", err)
	}
	activeUsers, err := r.platform.CountActiveUsers(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to count active users: %w", err)
	}

	lines := []string{
		fmt.Sprintf("New registrations: %d", registered),
		fmt.Sprintf("New enrollments: %d", enrollments),
		fmt.Sprintf("Course completions: %d", completions),
		fmt.Sprintf("Active users: %d", activeUsers),
	}

	payload := map[string]any{
		"period":        period,
		"from":          from.Format(time.RFC3339),
		"to":            to.Format(time.RFC3339),
		"registrations": registered,
		"enrollments":   enrollments,
		"completions":   completions,
		"activeUsers":   activeUsers,
	}

	if period == "weekly" || period == "monthly" {
		active, err := r.platform.RecentlyActiveProgress(ctx, from)
		if err != nil {
			return fmt.Errorf("failed to load engagement data: %w", err)
		}
		lines = append(lines, fmt.Sprintf("Learners with progress activity: %d", len(active)))
		payload["engagedLearners"] = len(active)
	}

	if period == "monthly" {
		top, err := r.platform.TopCourses(ctx, from, to, topCourseLimit)
		if err != nil {
			return fmt.Errorf("failed to load top courses: %w", err)
		}
		for i, course := range top {
			lines = append(lines, fmt.Sprintf("Top course %d: %s (%d enrollments)",
				i+1, course.CourseTitle, course.Enrollments))
		}
		payload["topCourses"] = len(top)
	}

	admins, err := r.platform.Admins(ctx)
	if err != nil {
		return fmt.Errorf("failed to load admin accounts: %w", err)
	}
	if len(admins) == 0 {
		r.logger.Warn("no admin accounts for report fan-out", zap.String("period", period))
		return nil
	}

	campaign := "report_" + period
	title := fmt.Sprintf("%s platform report", strings.ToUpper(period[:1])+period[1:])
	message := strings.Join(lines, ". ")

	for i := range admins {
		n := &domain.Notification{
			RecipientID: admins[i].ID,
			Channel:     domain.ChannelInApp,
			Priority:    domain.PriorityLow,
			Title:       title,
			Message:     message,
			Payload:     payload,
			Campaign:    &campaign,
			MaxRetries:  domain.DefaultMaxRetry,
		}
		if _, err := r.notifications.Create(ctx, n); err != nil {
			r.logger.Error("failed to deliver report notification",
				zap.String("period", period),
				zap.String("adminId", admins[i].ID),
				zap.Error(err),
			)
		}
	}

	if r.metrics != nil {
		r.metrics.IncReportGenerated(period)
	}

	r.logger.Info("report generated",
		zap.String("period", period),
		zap.Int("admins", len(admins)),
	)

	return nil
}
