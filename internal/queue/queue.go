// Package queue is the C6/C7 boundary: C6 publishes execution descriptors,
// and a worker process consumes them to drive C7. Transport is RabbitMQ
// via amqp091-go, chosen because AMQP natively carries the per-message
// priority the task queue contract requires (§6).
package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names; distinct per §6's "distinct queues for reports and
// notifications" requirement.
const (
	QueueReports       = "reports"
	QueueNotifications = "notifications"

	maxPriority = 10
)

// Descriptor is the self-contained payload a worker needs to run one
// execution (§8 Glossary).
type Descriptor struct {
	TaskID              string         `json:"task_id"`
	TenantID            string         `json:"tenant_id"`
	ScheduleID          *string        `json:"schedule_id,omitempty"`
	ReportDefinitionID  string         `json:"report_definition_id"`
	EmailDeliveryConfig map[string]any `json:"email_delivery_config,omitempty"`
	EnqueuedAt          time.Time      `json:"enqueued_at"`
	Priority            uint8          `json:"-"`
}

// Connection wraps an AMQP connection/channel pair with reconnect-on-drop,
// mirroring the broker-resilience shape used elsewhere in the stack for
// long-lived external dependencies.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool
}

func Dial(url string, logger *slog.Logger) (*Connection, error) {
	c := &Connection{url: url, logger: logger}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.watch()
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = ch
	c.logger.Info("connected to broker")
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	for _, name := range []string{QueueReports, QueueNotifications} {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			amqp.Table{"x-max-priority": int32(maxPriority)},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	return nil
}

func (c *Connection) watch() {
	for {
		c.mu.RLock()
		closed, conn := c.closed, c.conn
		c.mu.RUnlock()
		if closed {
			return
		}
		if conn == nil {
			time.Sleep(time.Second)
			continue
		}

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		if err, ok := <-notify; ok && err != nil {
			c.logger.Warn("broker connection dropped, reconnecting", "error", err)
		}

		c.mu.RLock()
		closed = c.closed
		c.mu.RUnlock()
		if closed {
			return
		}

		delay := time.Second
		for {
			if err := c.connect(); err != nil {
				c.logger.Warn("broker reconnect failed", "error", err)
				time.Sleep(delay)
				if delay < 30*time.Second {
					delay *= 2
				}
				continue
			}
			break
		}
	}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Connection) activeChannel() (*amqp.Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.channel == nil {
		return nil, fmt.Errorf("no broker channel available")
	}
	return c.channel, nil
}
