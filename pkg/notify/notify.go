// Package notify builds security notification templates and publishes them
// to a durable message queue. Actual e-mail/SMS delivery is owned by the
// notification workers consuming that queue; this core only records that
// dispatch was attempted.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Message is the payload published for one security notification.
type Message struct {
	AlertID      string    `json:"alert_id"`
	UserID       string    `json:"user_id"`
	AlertType    string    `json:"alert_type"`
	Severity     string    `json:"severity"`
	EmailSubject string    `json:"email_subject"`
	EmailBody    string    `json:"email_body"`
	SMSBody      string    `json:"sms_body"`
	CreatedAt    time.Time `json:"created_at"`
}

// Dispatcher publishes security notifications. Implementations must be safe
// for concurrent use.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
	Close() error
}

// AMQPDispatcher publishes messages to a durable RabbitMQ queue.
type AMQPDispatcher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *zap.Logger
}

// NewAMQPDispatcher dials the broker and declares the queue. The queue is
// durable so notifications survive broker restarts.
func NewAMQPDispatcher(url, queue string, logger *zap.Logger) (*AMQPDispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %s: %w", queue, err)
	}

	return &AMQPDispatcher{conn: conn, ch: ch, queue: queue, logger: logger}, nil
}

// Dispatch publishes one persistent message to the queue.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := d.ch.PublishWithContext(ctx, "", d.queue, false, false, pub); err != nil {
		d.logger.Warn("notification publish failed", zap.String("queue", d.queue), zap.Error(err))
		return fmt.Errorf("amqp publish: %w", err)
	}

	return nil
}

// Close releases the channel and connection.
func (d *AMQPDispatcher) Close() error {
	if d.ch != nil {
		_ = d.ch.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// NoopDispatcher drops messages; used when notifications are disabled.
type NoopDispatcher struct{}

func (NoopDispatcher) Dispatch(ctx context.Context, msg Message) error { return nil }
func (NoopDispatcher) Close() error                                    { return nil }
