package redis

import (
	"context"
	"testing"
	"time"
)

func TestTickLockAcquireOnce(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lock, err := NewTickLock(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewTickLock() error = %v", err)
	}

	tick := time.Unix(1_700_000_000, 0)

	ok, err := lock.Acquire(context.Background(), "reports:daily", tick)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("first acquire should win the lock")
	}

	ok, err = lock.Acquire(context.Background(), "reports:daily", tick)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("second acquire for the same tick should lose")
	}
}

func TestTickLockDistinctTicksAndNames(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lock, err := NewTickLock(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewTickLock() error = %v", err)
	}

	tick := time.Unix(1_700_000_100, 0)

	ok, err := lock.Acquire(context.Background(), "campaigns", tick)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("expected to win lock for campaigns tick")
	}

	ok, err = lock.Acquire(context.Background(), "cleanup", tick)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("a different tick family should not contend")
	}

	ok, err = lock.Acquire(context.Background(), "campaigns", tick.Add(time.Hour))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("a later tick of the same family should not contend")
	}
}

func TestTickLockRequiresName(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lock, err := NewTickLock(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewTickLock() error = %v", err)
	}

	if _, err := lock.Acquire(context.Background(), "  ", time.Now()); err == nil {
		t.Fatal("expected error for blank tick name")
	}
}
