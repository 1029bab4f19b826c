package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestCleanupPrunesBothRetentionWindows(t *testing.T) {
	t.Parallel()

	var analyticsCutoff, activityCutoff time.Time
	platform := &fakePlatformRepo{
		deleteAnalyticsOlderFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			analyticsCutoff = cutoff
			return 10, nil
		},
		deleteActivityOlderFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			activityCutoff = cutoff
			return 4, nil
		},
	}

	cleanup, err := NewCleanupService(platform, 30*24*time.Hour, 7*24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCleanupService() error = %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	cleanup.now = func() time.Time { return now }

	if err := cleanup.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if want := now.UTC().Add(-30 * 24 * time.Hour); !analyticsCutoff.Equal(want) {
		t.Fatalf("analytics cutoff = %v, want %v", analyticsCutoff, want)
	}
	if want := now.UTC().Add(-7 * 24 * time.Hour); !activityCutoff.Equal(want) {
		t.Fatalf("activity cutoff = %v, want %v", activityCutoff, want)
	}
}

func TestCleanupDefaultsRetention(t *testing.T) {
	t.Parallel()

	cleanup, err := NewCleanupService(&fakePlatformRepo{}, 0, 0, nil)
	if err != nil {
		t.Fatalf("NewCleanupService() error = %v", err)
	}

	if cleanup.analyticsRetention != 365*24*time.Hour {
		t.Fatalf("analytics retention = %v", cleanup.analyticsRetention)
	}
	if cleanup.activityRetention != 180*24*time.Hour {
		t.Fatalf("activity retention = %v", cleanup.activityRetention)
	}
}

func TestCleanupSurfacesPruneErrors(t *testing.T) {
	t.Parallel()

	platform := &fakePlatformRepo{
		deleteAnalyticsOlderFn: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}
	cleanup, err := NewCleanupService(platform, 0, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCleanupService() error = %v", err)
	}

	if err := cleanup.Run(context.Background()); err == nil {
		t.Fatal("prune failures should surface to the caller")
	}
}
