package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange/Queue — строковые типы именования топологии, сведённые к двум
// топикам §6: events_topic, dlq_topic.
type Exchange string
type Queue string

const (
	ExchangeEvents Exchange = "taskengine.events"
	ExchangeDLQ    Exchange = "taskengine.dlq"
)

// TopologyConfig — конфигурация топологии, настраиваемая хостом (§6
// "events_topic: string — required", "dlq_topic: string — required").
type TopologyConfig struct {
	EventsTopic string
	DLQTopic    string
}

// SetupTopology объявляет exchange'и и очереди для events_topic и dlq_topic,
// и связывает их routing-key'ями по task_id-префиксу ("#" — слушаем все).
func SetupTopology(ctx context.Context, conn *Connection, cfg TopologyConfig) error {
	if cfg.EventsTopic == "" {
		return fmt.Errorf("events_topic is required")
	}
	if cfg.DLQTopic == "" {
		return fmt.Errorf("dlq_topic is required")
	}

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch, cfg); err != nil {
			return err
		}
		if err := declareQueues(ch, cfg); err != nil {
			return err
		}
		return bindQueues(ch, cfg)
	})
}

func declareExchanges(ch *amqp.Channel, cfg TopologyConfig) error {
	if err := ch.ExchangeDeclare(cfg.EventsTopic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.DLQTopic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq exchange: %w", err)
	}
	return nil
}

func declareQueues(ch *amqp.Channel, cfg TopologyConfig) error {
	if _, err := ch.QueueDeclare(cfg.EventsTopic+".queue", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare events queue: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.DLQTopic+".queue", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq queue: %w", err)
	}
	return nil
}

func bindQueues(ch *amqp.Channel, cfg TopologyConfig) error {
	if err := ch.QueueBind(cfg.EventsTopic+".queue", "#", cfg.EventsTopic, false, nil); err != nil {
		return fmt.Errorf("bind events queue: %w", err)
	}
	if err := ch.QueueBind(cfg.DLQTopic+".queue", "#", cfg.DLQTopic, false, nil); err != nil {
		return fmt.Errorf("bind dlq queue: %w", err)
	}
	return nil
}

// TopologyInfo возвращает человекочитаемое описание топологии — удобно для
// логов при старте хоста.
func TopologyInfo(cfg TopologyConfig) string {
	return fmt.Sprintf(
		"events: %s -> %s.queue\ndlq:    %s -> %s.queue\n",
		cfg.EventsTopic, cfg.EventsTopic, cfg.DLQTopic, cfg.DLQTopic,
	)
}
