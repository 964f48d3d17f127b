package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher posts execution descriptors onto the reports queue, per §6's
// task queue contract.
type Publisher struct {
	conn *Connection
}

func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{conn: conn}
}

// Publish enqueues d onto queueName with ack-after-success semantics: the
// broker redelivers on nack or consumer crash, satisfying the
// at-least-once contract (§4.2).
func (p *Publisher) Publish(ctx context.Context, queueName string, d Descriptor) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}

	ch, err := p.conn.activeChannel()
	if err != nil {
		return err
	}

	priority := d.Priority
	if priority == 0 {
		priority = 5
	}
	if priority > maxPriority {
		priority = maxPriority
	}

	err = ch.PublishWithContext(ctx,
		"",        // default exchange routes directly to the queue by name
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Priority:     priority,
			MessageId:    d.TaskID,
			Timestamp:    d.EnqueuedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queueName, err)
	}
	return nil
}
