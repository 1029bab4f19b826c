package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/coursehub/notification-engine/internal/domain"
)

// BatchItem pairs one job with its destination queue for batch publishing.
type BatchItem struct {
	Queue   string
	Message JobMessage
}

// Publisher publishes dispatch jobs to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg JobMessage) error
	// PublishBatch submits every item or none of them.
	PublishBatch(ctx context.Context, items []BatchItem) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg JobMessage) error

// Consumer consumes dispatch jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// queuedChannels are the channels worked through the broker. IN_APP is
// delivered at write time and SMS is rejected before it can be enqueued.
var queuedChannels = []domain.Channel{
	domain.ChannelEmail,
	domain.ChannelPush,
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 4
)

// QueueName returns the channel work queue name, e.g. email.
func QueueName(channel domain.Channel) string {
	return strings.ToLower(channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.email.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", QueueName(channel))
}

// WorkQueueNames returns all channel work queues.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(queuedChannels))
	for _, channel := range queuedChannels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	queues := make([]string, 0, len(queuedChannels))
	for _, channel := range queuedChannels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}

// PriorityValue maps domain priority to RabbitMQ message priority.
// Higher-priority jobs are consumed first when a queue has a backlog.
func PriorityValue(priority domain.Priority) uint8 {
	switch priority {
	case domain.PriorityUrgent:
		return 4
	case domain.PriorityHigh:
		return 3
	case domain.PriorityMedium:
		return 2
	case domain.PriorityLow:
		return 1
	default:
		return 0
	}
}
