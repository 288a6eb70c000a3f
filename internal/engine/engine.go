// Package engine реализует the Execution Engine (§4.3): the lifecycle
// coordinator with a single entry point, Execute(ctx, task, handler). The
// mark-started → attempt-loop → settle → persist → emit sequencing follows
// worker.processTask. The Engine holds no lock: concurrent Execute calls
// share only the store, sinks and metrics, and each call works on its own
// *domain.Task.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/taskengine/internal/deadletter"
	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/events"
	"github.com/shaiso/taskengine/internal/ports"
	"github.com/shaiso/taskengine/internal/registry"
	"github.com/shaiso/taskengine/internal/retry"
	"github.com/shaiso/taskengine/internal/taskerr"
	"github.com/shaiso/taskengine/internal/telemetry"
)

// Engine orchestrates the full lifecycle of a single task execution:
// persist → run → emit → settle (§1, §4.3).
type Engine struct {
	store      ports.TaskStore
	retry      *retry.Strategy
	events     *events.Publisher
	deadLetter *deadletter.Processor
	clock      ports.Clock
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// Config — зависимости Engine.
type Config struct {
	Store      ports.TaskStore
	Retry      *retry.Strategy
	Events     *events.Publisher
	DeadLetter *deadletter.Processor
	Clock      ports.Clock
	Logger     *slog.Logger
	Metrics    *telemetry.Metrics
}

// New создаёт Engine. Store и Retry обязательны для корректной работы;
// Events/DeadLetter/Clock/Logger имеют разумные значения по умолчанию.
func New(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      cfg.Store,
		retry:      cfg.Retry,
		events:     cfg.Events,
		deadLetter: cfg.DeadLetter,
		clock:      clock,
		logger:     logger,
		metrics:    cfg.Metrics,
	}
}

// Execute прогоняет task через весь жизненный цикл и возвращает итоговый
// domain.TaskResult. task.ID, task.Type и handler обязательны — нарушение
// немедленно возвращает InvalidArgument синхронно, без обращений к стору
// и без событий (§4.3 "Preconditions", сценарий 6).
func (e *Engine) Execute(ctx context.Context, task *domain.Task, h registry.Handler) (domain.TaskResult, error) {
	if task == nil || task.ID == "" || task.Type == "" || h == nil {
		return nil, taskerr.ErrInvalidArgument
	}

	// 1. Mark started: persist IN_PROGRESS, then emit TASK_STARTED.
	//
	// A store failure here aborts the call entirely: the caller sees the
	// raw store error and no event is emitted (§4.3 "Failure semantics").
	now := e.clock.Now()
	task.MarkStarted(now)
	if err := e.store.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("persist mark-started: %w", err)
	}
	e.publish(ctx, task, domain.EventTaskStarted, nil, now)

	// 2. Attempt loop, delegated to the Retry Strategy.
	outcome, err := e.retry.Run(ctx, task, h)
	if err != nil {
		// Context cancellation or an internal Strategy error: propagate as-is,
		// leaving the task IN_PROGRESS for the stuck-task sweeper to recover.
		return nil, err
	}

	// 3 & 4. Settle: map the Result to a final status, persist, then emit.
	return e.settle(ctx, task, outcome)
}

func (e *Engine) settle(ctx context.Context, task *domain.Task, outcome retry.Outcome) (domain.TaskResult, error) {
	retryCount := outcome.Attempts - 1
	now := e.clock.Now()

	for i := 0; i < outcome.Attempts; i++ {
		e.metrics.RecordAttempt(task.Type)
	}
	for i := 0; i < retryCount; i++ {
		e.metrics.RecordRetry(task.Type)
	}

	switch result := outcome.Result.(type) {
	case domain.Success:
		task.MarkCompleted(now, retryCount)
		if err := e.store.Save(ctx, task); err != nil {
			e.logger.Error("failed to persist completed task, emitting best-effort event",
				"task_id", task.ID, "error", err)
		}
		e.publish(ctx, task, domain.EventTaskCompleted, map[string]any{
			"taskType":   task.Type,
			"retryCount": task.RetryCount,
			"result":     result.Result,
		}, now)
		e.metrics.RecordOutcome(task.Type, string(domain.TaskStatusCompleted))
		return result, nil

	case domain.Failure:
		if result.Retryable {
			task.MarkFailed(now, retryCount)
			if err := e.store.Save(ctx, task); err != nil {
				e.logger.Error("failed to persist failed task, emitting best-effort event",
					"task_id", task.ID, "error", err)
			}
			e.publish(ctx, task, domain.EventTaskFailed, map[string]any{
				"taskType":   task.Type,
				"retryCount": task.RetryCount,
				"error":      result.Error,
				"retryable":  true,
			}, now)
			e.metrics.RecordOutcome(task.Type, string(domain.TaskStatusFailed))
			return result, nil
		}

		if retryCount > task.RetryCount {
			task.RetryCount = retryCount
		}
		if e.deadLetter != nil {
			cause := &taskerr.HandlerError{TaskType: task.Type, Err: errors.New(result.Error)}
			if err := e.deadLetter.Process(ctx, task, cause); err != nil {
				return nil, fmt.Errorf("dead letter processing: %w", err)
			}
		}
		e.metrics.RecordOutcome(task.Type, string(domain.TaskStatusDeadLetter))
		e.metrics.RecordDLQSend(task.Type)
		return result, nil

	default:
		// TaskResult is sealed to Success/Failure (domain.result.go); any
		// other implementation is a programming error in a Handler.
		panic(fmt.Sprintf("engine: unreachable TaskResult variant %T", result))
	}
}

// Recover re-submits a task the stuck-task sweeper found IN_PROGRESS past
// its threshold (§5 "Stuck-task recovery", §4.7). It emits RETRY_ATTEMPTED
// with metadata.reason="stuck_recovery" — RECOVERED_FROM_DLQ is reserved
// for the admin requeue operation (§9 open question) — then re-enters the
// normal Execute path, which is idempotent by final status.
func (e *Engine) Recover(ctx context.Context, task *domain.Task, h registry.Handler) (domain.TaskResult, error) {
	if task == nil || task.ID == "" || h == nil {
		return nil, taskerr.ErrInvalidArgument
	}

	e.publish(ctx, task, domain.EventRetryAttempted, map[string]any{
		"taskType":   task.Type,
		"retryCount": task.RetryCount,
		"reason":     "stuck_recovery",
	}, e.clock.Now())

	return e.Execute(ctx, task, h)
}

// AdminRequeue moves a FAILED or DEAD_LETTER task back to PENDING — the one
// exception to "FAILED/DEAD_LETTER are terminal" carved out by invariant 1,
// exercised only by the admin CLI (§6.1). Persists the transition and emits
// RECOVERED_FROM_DLQ, a reserved event type never produced by the core
// execute/retry/dead-letter pipeline.
func (e *Engine) AdminRequeue(ctx context.Context, id string) (*domain.Task, error) {
	if id == "" {
		return nil, taskerr.ErrInvalidArgument
	}

	task, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}

	now := e.clock.Now()
	if !task.Requeue(now) {
		return nil, fmt.Errorf("%w: cannot requeue task in status %s", taskerr.ErrInvalidArgument, task.Status)
	}

	if err := e.store.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("persist requeue: %w", err)
	}

	e.publish(ctx, task, domain.EventRecoveredFromDLQ, map[string]any{
		"taskType": task.Type,
	}, now)

	return task, nil
}

// publish is a thin, nil-safe convenience over the Event Publisher so
// Execute/settle read as a straight-line sequence.
func (e *Engine) publish(ctx context.Context, task *domain.Task, eventType domain.EventType, metadata map[string]any, now time.Time) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, domain.NewEvent(task, eventType, metadata, now))
}
