// Package events реализует Event Publisher (§4.5): публикует TaskEvent в
// EventSink, ключуя по task_id, fire-and-forget. Форма (успех — debug,
// ошибка — error, никогда не пробрасывается вызывающей стороне) взята из
// mq.Publisher.Publish.
package events

import (
	"context"
	"log/slog"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/ports"
)

// Publisher публикует TaskEvent в EventSink.
type Publisher struct {
	sink   ports.EventSink
	topic  string
	logger *slog.Logger
}

// New создаёт Publisher для заданного топика. sink может быть nil —
// тогда Publish — no-op (полезно, когда у хоста ещё не настроен event bus).
func New(sink ports.EventSink, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{sink: sink, topic: topic, logger: logger}
}

// Publish отправляет событие, ключуя по event.TaskID. Ошибки sink'а
// логируются на уровне error и подавляются — вызывающая сторона никогда
// не видит сбой публикации (§4.5, §7 "SinkError").
func (p *Publisher) Publish(ctx context.Context, event domain.TaskEvent) {
	if p.sink == nil {
		return
	}

	if err := p.sink.Send(ctx, p.topic, event.TaskID, event); err != nil {
		p.logger.Error("failed to publish task event",
			"task_id", event.TaskID,
			"event_type", event.EventType,
			"error", err,
		)
		return
	}

	p.logger.Debug("published task event",
		"task_id", event.TaskID,
		"event_type", event.EventType,
	)
}
