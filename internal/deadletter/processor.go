// Package deadletter реализует Dead-Letter Processor (§4.4): finalise a
// non-retryable terminal task, enrich its error context, and hand it to the
// DLQ sink. Persist-then-publish-then-send ordering, and "swallow publish
// and send errors, never the persist error," follow worker.processTask's
// publishCompletion sequencing.
package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/events"
	"github.com/shaiso/taskengine/internal/ports"
	"github.com/shaiso/taskengine/internal/taskerr"
)

// Processor финализирует задачи, чьё выполнение дало терминальную
// (не ретраябельную) ошибку.
type Processor struct {
	store    ports.TaskStore
	dlqSink  ports.DLQSink
	dlqTopic string
	events   *events.Publisher
	clock    ports.Clock
	logger   *slog.Logger
}

// Config — зависимости Processor'а.
type Config struct {
	Store    ports.TaskStore
	DLQSink  ports.DLQSink
	DLQTopic string
	Events   *events.Publisher
	Clock    ports.Clock
	Logger   *slog.Logger
}

// New создаёт Processor.
func New(cfg Config) *Processor {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    cfg.Store,
		dlqSink:  cfg.DLQSink,
		dlqTopic: cfg.DLQTopic,
		events:   cfg.Events,
		clock:    clock,
		logger:   logger,
	}
}

// Process выполняет §4.4's три шага: persist DEAD_LETTER, emit MOVED_TO_DLQ,
// send to DLQ sink. task и cause обязательны.
//
// Повторная обработка уже-DEAD_LETTER task идемпотентна: persist — no-op
// относительно статуса, обновляется только UpdatedAt (см. §4.4 "Idempotence").
func (p *Processor) Process(ctx context.Context, task *domain.Task, cause error) error {
	if task == nil || cause == nil {
		return taskerr.ErrInvalidArgument
	}

	now := p.clock.Now()
	task.MarkDeadLetter(now, task.RetryCount)

	if err := p.store.Save(ctx, task); err != nil {
		return fmt.Errorf("persist dead letter: %w", err)
	}

	metadata := map[string]any{
		"taskType":     task.Type,
		"retryCount":   task.RetryCount,
		"errorType":    errorType(cause),
		"errorMessage": cause.Error(),
		"stackTrace":   captureStack(),
		"timestamp":    now,
	}

	if p.events != nil {
		p.events.Publish(ctx, domain.NewEvent(task, domain.EventMovedToDLQ, metadata, now))
	}

	if p.dlqSink != nil {
		if err := p.dlqSink.Send(ctx, p.dlqTopic, task.ID, task); err != nil {
			p.logger.Error("failed to send task to dlq sink",
				"task_id", task.ID,
				"error", err,
			)
		}
	}

	return nil
}

// errorType возвращает компактное имя типа ошибки для аудита, аналог
// java/python errorType в отсутствие рефлексии по классам в Go.
func errorType(err error) string {
	t := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(t, "*")
}

// captureStack снимает текущий стек вызовов как структурированный текст —
// у Go нет нативного stack-trace-в-ошибке, поэтому движок делает снимок
// runtime.Callers в момент классификации терминальной ошибки, тем же
// способом, которым работало бы восстановление после паники.
func captureStack() string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(3, pc)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pc[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
