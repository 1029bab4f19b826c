package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownQueue marks operations addressed to a queue that has no
// consumption gate.
var ErrUnknownQueue = errors.New("unknown queue")

// Gate pauses and resumes consumption without tearing down consumers.
// While paused, workers block in Wait until Resume or context cancel.
type Gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewGate() *Gate {
	return &Gate{resume: make(chan struct{})}
}

func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		g.paused = true
		g.resume = make(chan struct{})
	}
}

func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		g.paused = false
		close(g.resume)
	}
}

func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns immediately when the gate is open, otherwise blocks until
// Resume or context cancellation.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		paused := g.paused
		resume := g.resume
		g.mu.Unlock()

		if !paused {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}

// GateSet holds one gate per work queue so a single channel can be
// paused without stopping the others. DLQs are never gated: nothing
// consumes them.
type GateSet struct {
	gates map[string]*Gate
}

func NewGateSet(queues ...string) *GateSet {
	gates := make(map[string]*Gate, len(queues))
	for _, q := range queues {
		gates[q] = NewGate()
	}
	return &GateSet{gates: gates}
}

// Gate returns the gate for a queue, or nil when the queue is not gated.
func (s *GateSet) Gate(queue string) *Gate {
	if s == nil {
		return nil
	}
	return s.gates[queue]
}

// QueueStats is a point-in-time snapshot of a broker queue.
type QueueStats struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
	Paused    bool   `json:"paused"`
}

// Controller exposes operational queue actions for the admin surface.
type Controller struct {
	client *RabbitMQ
	gates  *GateSet
}

func NewController(client *RabbitMQ, gates *GateSet) (*Controller, error) {
	if client == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if gates == nil {
		gates = NewGateSet(WorkQueueNames()...)
	}

	return &Controller{client: client, gates: gates}, nil
}

// Pause stops consumption from one work queue. Already-paused queues
// stay paused.
func (c *Controller) Pause(queue string) error {
	gate := c.gates.Gate(queue)
	if gate == nil {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	gate.Pause()
	return nil
}

// Resume reopens consumption from one work queue.
func (c *Controller) Resume(queue string) error {
	gate := c.gates.Gate(queue)
	if gate == nil {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, queue)
	}
	gate.Resume()
	return nil
}

func (c *Controller) paused(queue string) bool {
	gate := c.gates.Gate(queue)
	return gate != nil && gate.Paused()
}

// Purge drops all ready messages from a work queue. Unacked deliveries
// held by workers are not affected.
func (c *Controller) Purge(ctx context.Context, queue string) (int, error) {
	if queue == "" {
		return 0, fmt.Errorf("queue name is required")
	}

	ch, err := c.client.channel(ctx)
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	purged, err := ch.QueuePurge(queue, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue %q: %w", queue, err)
	}

	return purged, nil
}

// Inspect reports depth and consumer counts for every work queue and DLQ.
func (c *Controller) Inspect(ctx context.Context) ([]QueueStats, error) {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	names := append(WorkQueueNames(), DLQNames()...)
	stats := make([]QueueStats, 0, len(names))
	for _, name := range names {
		q, err := ch.QueueInspect(name)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect queue %q: %w", name, err)
		}
		stats = append(stats, QueueStats{
			Name:      q.Name,
			Messages:  q.Messages,
			Consumers: q.Consumers,
			Paused:    c.paused(q.Name),
		})
	}

	return stats, nil
}
