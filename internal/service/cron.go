package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCronCheckInterval = 15 * time.Second

// RunLock serializes a named tick across engine instances. Acquire
// returns false when another instance already claimed the tick.
type RunLock interface {
	Acquire(ctx context.Context, name string, tick time.Time) (bool, error)
}

type cronJob struct {
	name     string
	schedule Schedule
	run      func(ctx context.Context) error
	nextAt   time.Time
}

// Cron drives the recurring tick families: due sweeps, cleanup, reports
// and reminder campaigns. Jobs are isolated; one job's error is logged
// and the others run regardless.
type Cron struct {
	lock          RunLock
	logger        *zap.Logger
	checkInterval time.Duration
	now           func() time.Time

	mu   sync.Mutex
	jobs []*cronJob
}

func NewCron(lock RunLock, checkInterval time.Duration, logger *zap.Logger) (*Cron, error) {
	if checkInterval <= 0 {
		checkInterval = defaultCronCheckInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cron{
		lock:          lock,
		logger:        logger,
		checkInterval: checkInterval,
		now:           time.Now,
	}, nil
}

// Add registers a recurring job. Names must be unique; they key the
// cross-instance run locks.
func (c *Cron) Add(name string, schedule Schedule, run func(ctx context.Context) error) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if schedule == nil {
		return fmt.Errorf("schedule is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, job := range c.jobs {
		if job.name == name {
			return fmt.Errorf("job %q is already registered", name)
		}
	}

	c.jobs = append(c.jobs, &cronJob{
		name:     name,
		schedule: schedule,
		run:      run,
		nextAt:   schedule.Next(c.now()),
	})

	c.logger.Info("registered recurring job",
		zap.String("job", name),
		zap.String("schedule", schedule.String()),
	)

	return nil
}

func (c *Cron) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	jobCount := len(c.jobs)
	c.mu.Unlock()
	if jobCount == 0 {
		return fmt.Errorf("no jobs registered")
	}

	ticker := time.NewTicker(c.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.runDue(ctx)
		}
	}
}

func (c *Cron) runDue(ctx context.Context) {
	now := c.now()

	c.mu.Lock()
	due := make([]*cronJob, 0, len(c.jobs))
	for _, job := range c.jobs {
		if !job.nextAt.After(now) {
			due = append(due, job)
		}
	}
	c.mu.Unlock()

	for _, job := range due {
		tick := job.nextAt

		c.mu.Lock()
		job.nextAt = job.schedule.Next(now)
		c.mu.Unlock()

		if c.lock != nil {
			won, err := c.lock.Acquire(ctx, job.name, tick)
			if err != nil {
				c.logger.Error("failed to acquire run lock",
					zap.String("job", job.name),
					zap.Error(err),
				)
				continue
			}
			if !won {
				continue
			}
		}

		start := c.now()
		if err := job.run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("recurring job failed",
				zap.String("job", job.name),
				zap.Error(err),
			)
			continue
		}

		c.logger.Info("recurring job completed",
			zap.String("job", job.name),
			zap.Duration("took", c.now().Sub(start)),
		)
	}
}
