package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

// Publisher publishes fetch task messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg FetchTaskMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg FetchTaskMessage) error

// Consumer consumes fetch task messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedKinds = []domain.TaskKind{
	domain.TaskFlights,
	domain.TaskHotels,
	domain.TaskPriceGrid,
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	// Live searches outrank sweep traffic.
	queueMaxPriority int32 = 3
)

// QueueName returns the work queue for a task kind, e.g. fetch.flights.
func QueueName(kind domain.TaskKind) string {
	return fmt.Sprintf("fetch.%s", strings.ToLower(kind.String()))
}

// DLQName returns the dead-letter queue for a task kind, e.g.
// dlq.fetch.flights.
func DLQName(kind domain.TaskKind) string {
	return fmt.Sprintf("dlq.%s", QueueName(kind))
}

// WorkQueueNames returns all fetch work queues (3 total).
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, QueueName(kind))
	}
	return queues
}

// DLQNames returns all dead-letter queues (3 total).
func DLQNames() []string {
	queues := make([]string, 0, len(supportedKinds))
	for _, kind := range supportedKinds {
		queues = append(queues, DLQName(kind))
	}
	return queues
}

// PriorityValue maps a batch category to RabbitMQ message priority: a
// customer waiting on a live search always dequeues before sweep traffic.
func PriorityValue(category domain.Category) uint8 {
	switch category {
	case domain.CategoryLive:
		return 3
	case domain.CategoryHoliday:
		return 2
	case domain.CategoryEconomic, domain.CategoryWeekend:
		return 1
	default:
		return 0
	}
}
