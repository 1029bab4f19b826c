package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coursehub/notification-engine/internal/domain"
)

const (
	dlxExchangeName = "notifications.dlx"

	dialTimeout   = 15 * time.Second
	redialBackoff = time.Second
	redialMax     = 30 * time.Second
)

// RabbitMQ holds the broker connection and redials it on demand. Every
// channel it hands out has the work topology declared, so publishers and
// consumers never race queue creation.
type RabbitMQ struct {
	url string

	mu       sync.RWMutex
	redialMu sync.Mutex
	conn     *amqp.Connection
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := r.ensure(ctx); err != nil {
		return nil, err
	}

	return r, nil
}

// Ping verifies the broker is reachable by opening and closing a channel.
func (r *RabbitMQ) Ping(ctx context.Context) error {
	ch, err := r.channel(ctx)
	if err != nil {
		return err
	}
	return ch.Close()
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (r *RabbitMQ) current() *amqp.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conn
}

// channel returns a fresh channel with the topology declared, redialing
// the connection when the broker dropped it.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}

	ch, err := r.current().Channel()
	if err != nil {
		if redialErr := r.redial(ctx); redialErr != nil {
			return nil, redialErr
		}
		ch, err = r.current().Channel()
		if err != nil {
			return nil, fmt.Errorf("failed to open rabbitmq channel after redial: %w", err)
		}
	}

	if err := declareTopology(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return ch, nil
}

func (r *RabbitMQ) ensure(ctx context.Context) error {
	if conn := r.current(); conn != nil && !conn.IsClosed() {
		return nil
	}
	return r.redial(ctx)
}

// redial reconnects with capped exponential backoff. The redial mutex
// collapses concurrent callers into one dial loop.
func (r *RabbitMQ) redial(ctx context.Context) error {
	r.redialMu.Lock()
	defer r.redialMu.Unlock()

	if conn := r.current(); conn != nil && !conn.IsClosed() {
		return nil
	}

	wait := redialBackoff
	for {
		conn, err := amqp.Dial(r.url)
		if err == nil {
			r.mu.Lock()
			stale := r.conn
			r.conn = conn
			r.mu.Unlock()

			if stale != nil && !stale.IsClosed() {
				_ = stale.Close()
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq redial canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait *= 2
		if wait > redialMax {
			wait = redialMax
		}
	}
}

// declareTopology sets up the dead-letter exchange plus, per queued
// channel, a DLQ bound to it and a priority-enabled work queue that
// dead-letters into it.
func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, channel := range queuedChannels {
		if err := declareChannelQueues(ch, channel); err != nil {
			return err
		}
	}

	return nil
}

func declareChannelQueues(ch *amqp.Channel, channel domain.Channel) error {
	routingKey := channelRoutingKey(channel)

	dlqName := DLQName(channel)
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlq %q: %w", dlqName, err)
	}
	if err := ch.QueueBind(dlqName, routingKey, dlxExchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind dlq %q: %w", dlqName, err)
	}

	queueName := QueueName(channel)
	args := amqp.Table{
		"x-dead-letter-exchange":    dlxExchangeName,
		"x-dead-letter-routing-key": routingKey,
		"x-max-priority":            queueMaxPriority,
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", queueName, err)
	}

	return nil
}

func channelRoutingKey(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}
