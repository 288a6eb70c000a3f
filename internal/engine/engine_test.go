package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/taskengine/internal/deadletter"
	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/events"
	"github.com/shaiso/taskengine/internal/ports/portstest"
	"github.com/shaiso/taskengine/internal/registry"
	"github.com/shaiso/taskengine/internal/retry"
	"github.com/shaiso/taskengine/internal/taskerr"
)

type testDeps struct {
	store *portstest.Store
	sink  *portstest.EventSink
	dlq   *portstest.DLQSink
	clock *portstest.Clock
}

func newEngine(t *testing.T, retryCfg retry.Config) (*Engine, testDeps) {
	t.Helper()
	store := portstest.NewStore()
	sink := &portstest.EventSink{}
	dlq := &portstest.DLQSink{}
	clock := portstest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	pub := events.New(sink, "task.events", nil)
	strategy := retry.New(retryCfg)
	dl := deadletter.New(deadletter.Config{
		Store:    store,
		DLQSink:  dlq,
		DLQTopic: "task.dlq",
		Events:   pub,
		Clock:    clock,
	})

	e := New(Config{
		Store:      store,
		Retry:      strategy,
		Events:     pub,
		DeadLetter: dl,
		Clock:      clock,
	})
	return e, testDeps{store: store, sink: sink, dlq: dlq, clock: clock}
}

func handlerFunc(fn func(ctx context.Context, task *domain.Task) (domain.TaskResult, error)) registry.Handler {
	return registry.HandlerFunc{TypeName: "email.send", Fn: fn}
}

func TestExecute_SuccessOnFirstTry(t *testing.T) {
	e, deps := newEngine(t, retry.Config{AttemptTimeout: time.Second})

	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		return domain.Success{TaskID: task.ID, Result: map[string]any{"sent": true}}, nil
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	result, err := e.Execute(context.Background(), task, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.(domain.Success); !ok {
		t.Fatalf("expected Success, got %T", result)
	}
	if task.Status != domain.TaskStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", task.Status)
	}

	evs := deps.sink.All()
	if len(evs) != 2 || evs[0].EventType != domain.EventTaskStarted || evs[1].EventType != domain.EventTaskCompleted {
		t.Fatalf("expected [TASK_STARTED, TASK_COMPLETED], got %+v", evs)
	}
}

func TestExecute_RetryThenSucceed(t *testing.T) {
	e, deps := newEngine(t, retry.Config{MaxRetries: 3, AttemptTimeout: time.Second, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		attempts++
		if attempts < 2 {
			return nil, taskerr.Retryable(errors.New("transient"))
		}
		return domain.Success{TaskID: task.ID}, nil
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	result, err := e.Execute(context.Background(), task, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.(domain.Success); !ok {
		t.Fatalf("expected Success, got %T", result)
	}
	if task.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", task.RetryCount)
	}
}

func TestExecute_PermanentFailureGoesToDeadLetter(t *testing.T) {
	e, deps := newEngine(t, retry.Config{MaxRetries: 3, AttemptTimeout: time.Second})

	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		return nil, errors.New("malformed payload")
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	result, err := e.Execute(context.Background(), task, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, ok := result.(domain.Failure)
	if !ok || f.Retryable {
		t.Fatalf("expected non-retryable Failure, got %+v", result)
	}
	if task.Status != domain.TaskStatusDeadLetter {
		t.Fatalf("expected DEAD_LETTER, got %s", task.Status)
	}
	if len(deps.dlq.Tasks) != 1 {
		t.Fatalf("expected task forwarded to dlq sink, got %+v", deps.dlq.Tasks)
	}
}

func TestExecute_ExhaustedRetriesEndsFailed(t *testing.T) {
	e, deps := newEngine(t, retry.Config{MaxRetries: 2, AttemptTimeout: time.Second, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		return nil, taskerr.Retryable(errors.New("still down"))
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	result, err := e.Execute(context.Background(), task, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f, ok := result.(domain.Failure)
	if !ok || !f.Retryable {
		t.Fatalf("expected retryable Failure, got %+v", result)
	}
	if task.Status != domain.TaskStatusFailed {
		t.Fatalf("expected FAILED, got %s", task.Status)
	}
	if task.RetryCount != 2 {
		t.Fatalf("expected retry_count=2, got %d", task.RetryCount)
	}
}

func TestExecute_SinkFailuresDoNotAffectResult(t *testing.T) {
	e, deps := newEngine(t, retry.Config{AttemptTimeout: time.Second})
	deps.sink.Err = errors.New("broker down")

	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		return domain.Success{TaskID: task.ID}, nil
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	result, err := e.Execute(context.Background(), task, h)
	if err != nil {
		t.Fatalf("event sink failure must not surface: %v", err)
	}
	if _, ok := result.(domain.Success); !ok {
		t.Fatalf("expected Success despite sink failure, got %T", result)
	}
}

func TestExecute_InvalidArgument(t *testing.T) {
	e, deps := newEngine(t, retry.Config{})
	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		return domain.Success{}, nil
	})

	if _, err := e.Execute(context.Background(), nil, h); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument for nil task, got %v", err)
	}
	if _, err := e.Execute(context.Background(), &domain.Task{ID: "t1", Type: "x"}, nil); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument for nil handler, got %v", err)
	}
	if _, err := e.Execute(context.Background(), &domain.Task{ID: "", Type: "x"}, h); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument for blank id, got %v", err)
	}

	if len(deps.store.Saves) != 0 {
		t.Fatalf("expected no store interaction on precondition failure, got %d saves", len(deps.store.Saves))
	}
}

func TestExecute_MarkStartedPersistFailureAbortsBeforeEvents(t *testing.T) {
	e, deps := newEngine(t, retry.Config{})
	deps.store.SaveErr = []error{errors.New("db unreachable")}

	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		t.Fatal("handler must not run when mark-started persist fails")
		return nil, nil
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	_, err := e.Execute(context.Background(), task, h)
	if err == nil {
		t.Fatal("expected error from mark-started persist failure")
	}
	if len(deps.sink.All()) != 0 {
		t.Fatalf("expected no events emitted, got %+v", deps.sink.All())
	}
}

func TestRecover_EmitsStuckRecoveryThenExecutes(t *testing.T) {
	e, deps := newEngine(t, retry.Config{AttemptTimeout: time.Second})

	h := handlerFunc(func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
		return domain.Success{TaskID: task.ID}, nil
	})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	task.Status = domain.TaskStatusInProgress

	result, err := e.Recover(context.Background(), task, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := result.(domain.Success); !ok {
		t.Fatalf("expected Success, got %T", result)
	}

	evs := deps.sink.All()
	if len(evs) == 0 || evs[0].EventType != domain.EventRetryAttempted {
		t.Fatalf("expected first event RETRY_ATTEMPTED, got %+v", evs)
	}
	if evs[0].Metadata["reason"] != "stuck_recovery" {
		t.Fatalf("expected reason=stuck_recovery, got %+v", evs[0].Metadata)
	}
}

func TestAdminRequeue_FromFailedToPending(t *testing.T) {
	e, deps := newEngine(t, retry.Config{AttemptTimeout: time.Second})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	task.Status = domain.TaskStatusFailed
	if err := deps.store.Save(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := e.AdminRequeue(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.TaskStatusPending {
		t.Fatalf("expected status PENDING, got %s", got.Status)
	}

	evs := deps.sink.All()
	if len(evs) == 0 || evs[len(evs)-1].EventType != domain.EventRecoveredFromDLQ {
		t.Fatalf("expected last event RECOVERED_FROM_DLQ, got %+v", evs)
	}
}

func TestAdminRequeue_FromPendingFailsInvalidArgument(t *testing.T) {
	e, deps := newEngine(t, retry.Config{AttemptTimeout: time.Second})

	task := domain.NewTask("t1", "email.send", nil, deps.clock.Now())
	if err := deps.store.Save(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := e.AdminRequeue(context.Background(), "t1")
	if !errors.Is(err, taskerr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAdminRequeue_BlankIDFailsInvalidArgument(t *testing.T) {
	e, _ := newEngine(t, retry.Config{AttemptTimeout: time.Second})

	_, err := e.AdminRequeue(context.Background(), "")
	if !errors.Is(err, taskerr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

