package messaging

import (
	"context"

	"complaint-intake-system/pkg/queue"
	"complaint-intake-system/services/report-service/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationQueue carries outbound events to the notification service.
const NotificationQueue = "notification_queue"

// QueueNotifier publishes lifecycle events to RabbitMQ. It is the
// fire-and-forget side of the engine: callers dispatch from a goroutine and
// only log failures.
type QueueNotifier struct {
	ch *amqp.Channel
}

func NewQueueNotifier(ch *amqp.Channel) *QueueNotifier {
	return &QueueNotifier{ch: ch}
}

func (n *QueueNotifier) Publish(_ context.Context, event models.NotificationEvent) error {
	return queue.PublishMessage(n.ch, NotificationQueue, event)
}
