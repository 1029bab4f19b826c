package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQPublisher writes dispatch jobs to the work queues. Messages
// are persistent and carry the notification priority so urgent sends
// jump the backlog.
type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg JobMessage) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	publishing, err := buildPublishing(msg)
	if err != nil {
		return err
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

// PublishBatch enqueues all items inside one channel transaction, so a
// mid-batch broker error leaves no partial enqueue behind.
func (p *RabbitMQPublisher) PublishBatch(ctx context.Context, items []BatchItem) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if len(items) == 0 {
		return nil
	}

	publishings := make([]amqp.Publishing, len(items))
	for i, item := range items {
		if item.Queue == "" {
			return fmt.Errorf("queue name is required")
		}
		publishing, err := buildPublishing(item.Message)
		if err != nil {
			return err
		}
		publishings[i] = publishing
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Tx(); err != nil {
		return fmt.Errorf("failed to open publish transaction: %w", err)
	}

	for i, item := range items {
		if err := ch.PublishWithContext(ctx, "", item.Queue, false, false, publishings[i]); err != nil {
			if rbErr := ch.TxRollback(); rbErr != nil {
				return fmt.Errorf("batch publish to %q failed (%v) and rollback failed: %w", item.Queue, err, rbErr)
			}
			return fmt.Errorf("failed to publish batch message to queue %q: %w", item.Queue, err)
		}
	}

	if err := ch.TxCommit(); err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	return nil
}

func buildPublishing(msg JobMessage) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid job message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now().UTC(),
		MessageId:     msg.NotificationID,
		CorrelationId: msg.CorrelationID,
		Priority:      PriorityValue(msg.Priority),
		Headers:       amqp.Table{"x-attempt": int32(msg.Attempt)},
		Body:          payload,
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
