package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one dequeued descriptor. A nil return acks the
// message; a non-nil return nacks it with requeue=true so the broker
// redelivers (the worker-side idempotency the spec requires, §4.6).
type Handler func(ctx context.Context, d Descriptor) error

// Consumer drains one queue with a bounded prefetch, ack-after-success.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	prefetch int
	handler  Handler
}

func NewConsumer(conn *Connection, logger *slog.Logger, queueName string, prefetch int, handler Handler) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{conn: conn, logger: logger, queue: queueName, prefetch: prefetch, handler: handler}
}

// Start blocks, consuming until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.activeChannel()
	if err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		c.queue,
		"",    // consumer tag
		false, // auto-ack: false, we ack manually after success
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info("queue consumer started", "queue", c.queue, "prefetch", c.prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var d Descriptor
	if err := json.Unmarshal(raw.Body, &d); err != nil {
		c.logger.Error("malformed descriptor, dropping", "queue", c.queue, "error", err)
		_ = raw.Nack(false, false)
		return
	}

	if err := c.handler(ctx, d); err != nil {
		c.logger.Error("descriptor handling failed, requeueing", "queue", c.queue, "task_id", d.TaskID, "error", err)
		_ = raw.Nack(false, true)
		return
	}

	_ = raw.Ack(false)
}
