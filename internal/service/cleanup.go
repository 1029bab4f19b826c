package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coursehub/notification-engine/internal/repository"
)

// CleanupService prunes aged platform rows: analytics events past one
// retention window and activity logs past another.
type CleanupService struct {
	platform           repository.PlatformRepository
	analyticsRetention time.Duration
	activityRetention  time.Duration
	logger             *zap.Logger
	now                func() time.Time
}

func NewCleanupService(
	platform repository.PlatformRepository,
	analyticsRetention, activityRetention time.Duration,
	logger *zap.Logger,
) (*CleanupService, error) {
	if platform == nil {
		return nil, fmt.Errorf("platform repository is required")
	}
	if analyticsRetention <= 0 {
		analyticsRetention = 365 * 24 * time.Hour
	}
	if activityRetention <= 0 {
		activityRetention = 180 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CleanupService{
		platform:           platform,
		analyticsRetention: analyticsRetention,
		activityRetention:  activityRetention,
		logger:             logger,
		now:                time.Now,
	}, nil
}

// Housekeep is the hourly log-retention hook. Rotation is handled by
// the platform's log shipper, so this only reports liveness for now.
func (c *CleanupService) Housekeep(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Debug("log retention housekeeping tick")
	return nil
}

func (c *CleanupService) Run(ctx context.Context) error {
	now := c.now().UTC()

	analyticsDeleted, err := c.platform.DeleteAnalyticsOlderThan(ctx, now.Add(-c.analyticsRetention))
	if err != nil {
		return fmt.Errorf("failed to prune analytics events: %w", err)
	}

	activityDeleted, err := c.platform.DeleteActivityOlderThan(ctx, now.Add(-c.activityRetention))
	if err != nil {
		return fmt.Errorf("failed to prune activity logs: %w", err)
	}

	if analyticsDeleted > 0 || activityDeleted > 0 {
		c.logger.Info("pruned aged platform rows",
			zap.Int64("analyticsEvents", analyticsDeleted),
			zap.Int64("activityLogs", activityDeleted),
		)
	}

	return nil
}
