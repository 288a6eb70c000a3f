package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/taskengine/internal/domain"
)

// Publisher — тонкая обёртка публикации поверх Connection: marshal в JSON,
// PublishWithContext с DeliveryMode: amqp.Persistent, затем ожидание
// publisher-confirm ack'а от брокера (Connection открывает канал в режиме
// Confirm) — Send не возвращает nil, пока брокер не подтвердил доставку.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

		if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		}); err != nil {
			return fmt.Errorf("publish: %w", err)
		}

		select {
		case confirm, ok := <-confirms:
			if !ok {
				return fmt.Errorf("publish confirm channel closed before ack")
			}
			if !confirm.Ack {
				return fmt.Errorf("broker nacked publish (delivery tag %d)", confirm.DeliveryTag)
			}
			return nil
		case <-ctx.Done():
			return fmt.Errorf("waiting for publish confirm: %w", ctx.Err())
		}
	})
}

// EventSink реализует ports.EventSink: публикует события жизненного цикла
// task'а в указанный топик, ключуясь task_id.
type EventSink struct {
	pub *Publisher
}

// NewEventSink создаёт EventSink поверх Connection.
func NewEventSink(conn *Connection, logger *slog.Logger) *EventSink {
	return &EventSink{pub: NewPublisher(conn, logger)}
}

// Send публикует domain.TaskEvent в topic, с routing key = key (task_id).
func (s *EventSink) Send(ctx context.Context, topic, key string, event domain.TaskEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.pub.publish(ctx, topic, key, body); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// DLQSink реализует ports.DLQSink: отправляет финализированные tasks
// в dead-letter топик.
type DLQSink struct {
	pub *Publisher
}

// NewDLQSink создаёт DLQSink поверх Connection.
func NewDLQSink(conn *Connection, logger *slog.Logger) *DLQSink {
	return &DLQSink{pub: NewPublisher(conn, logger)}
}

// Send публикует *domain.Task в topic, с routing key = key (task_id).
func (s *DLQSink) Send(ctx context.Context, topic, key string, task *domain.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	if err := s.pub.publish(ctx, topic, key, body); err != nil {
		return fmt.Errorf("publish dlq task: %w", err)
	}
	return nil
}
