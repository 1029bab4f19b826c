package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/observability"
	"github.com/coursehub/notification-engine/internal/repository"
)

const (
	campaignInactiveUsers        = "inactive_users"
	campaignIncompleteEnrollment = "incomplete_enrollment"
	campaignStalledProgress      = "stalled_progress"
	campaignWeeklySummary        = "weekly_summary"

	inactiveUserWindow     = 7 * 24 * time.Hour
	incompleteEnrollWindow = 3 * 24 * time.Hour
	stalledProgressWindow  = 7 * 24 * time.Hour
	weeklySummaryLookback  = 7 * 24 * time.Hour
)

// CampaignService runs the reminder campaign rules. Each rule selects its
// audience from platform data and creates notifications; rules are
// isolated so one rule's failure never blocks its siblings.
type CampaignService struct {
	platform      repository.PlatformRepository
	notifications *NotificationService
	store         repository.NotificationRepository
	suppression   time.Duration
	metrics       *observability.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewCampaignService builds the campaign runner. A zero suppression
// window keeps the default behavior of re-notifying on every run; a
// positive window suppresses repeats of the same campaign per recipient.
func NewCampaignService(
	platform repository.PlatformRepository,
	notifications *NotificationService,
	store repository.NotificationRepository,
	suppression time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*CampaignService, error) {
	if platform == nil {
		return nil, fmt.Errorf("platform repository is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CampaignService{
		platform:      platform,
		notifications: notifications,
		store:         store,
		suppression:   suppression,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Run executes all campaign rules. Every rule runs even when an earlier
// one fails; the combined error reports which rules broke.
func (c *CampaignService) Run(ctx context.Context) error {
	rules := []struct {
		name string
		run  func(context.Context) error
	}{
		{campaignInactiveUsers, c.remindInactiveUsers},
		{campaignIncompleteEnrollment, c.remindIncompleteEnrollments},
		{campaignStalledProgress, c.remindStalledProgress},
		{campaignWeeklySummary, c.sendWeeklySummaries},
	}

	var errs []error
	for _, rule := range rules {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := rule.run(ctx); err != nil {
			c.logger.Error("campaign rule failed",
				zap.String("rule", rule.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", rule.name, err))
		}
	}

	return errors.Join(errs...)
}

// remindInactiveUsers emails active accounts that have not logged in for
// a week.
func (c *CampaignService) remindInactiveUsers(ctx context.Context) error {
	cutoff := c.now().UTC().Add(-inactiveUserWindow)
	users, err := c.platform.InactiveUsers(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to select inactive users: %w", err)
	}

	for i := range users {
		user := users[i]
		c.deliver(ctx, campaignInactiveUsers, &domain.Notification{
			RecipientID: user.ID,
			Channel:     domain.ChannelEmail,
			Priority:    domain.PriorityLow,
			Title:       "We miss you",
			Message:     "You have not visited in a while. Your courses are waiting for you.",
			MaxRetries:  domain.DefaultMaxRetry,
		})
	}

	return nil
}

// remindIncompleteEnrollments nudges learners who enrolled at least three
// days ago and have not completed the course.
func (c *CampaignService) remindIncompleteEnrollments(ctx context.Context) error {
	cutoff := c.now().UTC().Add(-incompleteEnrollWindow)
	enrollments, err := c.platform.IncompleteEnrollments(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to select incomplete enrollments: %w", err)
	}

	for i := range enrollments {
		enrollment := enrollments[i]
		c.deliver(ctx, campaignIncompleteEnrollment, &domain.Notification{
			RecipientID: enrollment.UserID,
			Channel:     domain.ChannelEmail,
			Priority:    domain.PriorityLow,
			Title:       "Continue your course",
			Message:     fmt.Sprintf("You enrolled in %s but have not finished it yet. Pick up where you left off.", enrollment.CourseTitle),
			Payload: map[string]any{
				"courseId": enrollment.CourseID,
			},
			MaxRetries: domain.DefaultMaxRetry,
		})
	}

	return nil
}

// remindStalledProgress sends in-app nudges for courses started but
// untouched for a week.
func (c *CampaignService) remindStalledProgress(ctx context.Context) error {
	cutoff := c.now().UTC().Add(-stalledProgressWindow)
	stalled, err := c.platform.StalledProgress(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to select stalled progress: %w", err)
	}

	for i := range stalled {
		progress := stalled[i]
		c.deliver(ctx, campaignStalledProgress, &domain.Notification{
			RecipientID: progress.UserID,
			Channel:     domain.ChannelInApp,
			Priority:    domain.PriorityMedium,
			Title:       "Keep going",
			Message:     fmt.Sprintf("You are %.0f%% through %s. A short session will keep your momentum.", progress.CompletionPercentage, progress.CourseTitle),
			Payload: map[string]any{
				"courseId":             progress.CourseID,
				"completionPercentage": progress.CompletionPercentage,
			},
			MaxRetries: domain.DefaultMaxRetry,
		})
	}

	return nil
}

// sendWeeklySummaries congratulates learners who made progress in the
// last week, one summary per learner.
func (c *CampaignService) sendWeeklySummaries(ctx context.Context) error {
	since := c.now().UTC().Add(-weeklySummaryLookback)
	active, err := c.platform.RecentlyActiveProgress(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to select active learners: %w", err)
	}

	coursesByUser := make(map[string]int)
	for i := range active {
		coursesByUser[active[i].UserID]++
	}

	for userID, courses := range coursesByUser {
		c.deliver(ctx, campaignWeeklySummary, &domain.Notification{
			RecipientID: userID,
			Channel:     domain.ChannelInApp,
			Priority:    domain.PriorityLow,
			Title:       "Your weekly learning summary",
			Message:     fmt.Sprintf("You made progress in %d course(s) this week. Keep it up.", courses),
			Payload: map[string]any{
				"activeCourses": courses,
			},
			MaxRetries: domain.DefaultMaxRetry,
		})
	}

	return nil
}

// deliver applies the suppression window and creates the notification.
// Per-recipient failures are logged, never propagated: a broken recipient
// must not abort the rest of the audience.
func (c *CampaignService) deliver(ctx context.Context, campaign string, n *domain.Notification) {
	if c.suppression > 0 {
		since := c.now().UTC().Add(-c.suppression)
		recent, err := c.store.HasRecentCampaign(ctx, n.RecipientID, campaign, since)
		if err != nil {
			c.logger.Warn("suppression lookup failed, sending anyway",
				zap.String("rule", campaign),
				zap.String("recipientId", n.RecipientID),
				zap.Error(err),
			)
		} else if recent {
			return
		}
	}

	n.Campaign = &campaign
	if _, err := c.notifications.Create(ctx, n); err != nil {
		c.logger.Error("failed to create campaign notification",
			zap.String("rule", campaign),
			zap.String("recipientId", n.RecipientID),
			zap.Error(err),
		)
		return
	}

	if c.metrics != nil {
		c.metrics.IncCampaignReminder(campaign)
	}
}
