package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/events"
	"github.com/shaiso/taskengine/internal/ports/portstest"
)

func newProcessor(t *testing.T) (*Processor, *portstest.Store, *portstest.EventSink, *portstest.DLQSink, *portstest.Clock) {
	t.Helper()
	store := portstest.NewStore()
	sink := &portstest.EventSink{}
	dlq := &portstest.DLQSink{}
	clock := portstest.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	pub := events.New(sink, "task.events", nil)
	p := New(Config{
		Store:    store,
		DLQSink:  dlq,
		DLQTopic: "task.dlq",
		Events:   pub,
		Clock:    clock,
	})
	return p, store, sink, dlq, clock
}

func TestProcess_PersistsEmitsAndSends(t *testing.T) {
	p, store, sink, dlq, _ := newProcessor(t)

	task := domain.NewTask("t1", "email.send", nil, time.Now())
	task.Status = domain.TaskStatusInProgress
	store.Save(context.Background(), task)

	if err := p.Process(context.Background(), task, errors.New("invalid recipient")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.Status != domain.TaskStatusDeadLetter {
		t.Fatalf("expected DEAD_LETTER, got %s", task.Status)
	}

	got, _ := store.FindByID(context.Background(), "t1")
	if got.Status != domain.TaskStatusDeadLetter {
		t.Fatalf("expected persisted DEAD_LETTER, got %s", got.Status)
	}

	events := sink.All()
	if len(events) != 1 || events[0].EventType != domain.EventMovedToDLQ {
		t.Fatalf("expected one MOVED_TO_DLQ event, got %+v", events)
	}
	if events[0].Metadata["errorMessage"] != "invalid recipient" {
		t.Fatalf("expected error message in metadata, got %+v", events[0].Metadata)
	}

	if len(dlq.Tasks) != 1 || dlq.Tasks[0].ID != "t1" {
		t.Fatalf("expected task sent to dlq sink, got %+v", dlq.Tasks)
	}
}

func TestProcess_PersistFailurePropagates(t *testing.T) {
	store := portstest.NewStore()
	store.SaveErr = []error{errors.New("db down")}
	p := New(Config{Store: store})

	task := domain.NewTask("t1", "email.send", nil, time.Now())
	err := p.Process(context.Background(), task, errors.New("cause"))
	if err == nil {
		t.Fatal("expected persist error to propagate")
	}
}

func TestProcess_SinkFailuresAreSwallowed(t *testing.T) {
	store := portstest.NewStore()
	sink := &portstest.EventSink{Err: errors.New("broker unavailable")}
	dlq := &portstest.DLQSink{Err: errors.New("broker unavailable")}
	p := New(Config{
		Store:   store,
		DLQSink: dlq,
		Events:  events.New(sink, "task.events", nil),
	})

	task := domain.NewTask("t1", "email.send", nil, time.Now())
	if err := p.Process(context.Background(), task, errors.New("cause")); err != nil {
		t.Fatalf("sink errors must not propagate: %v", err)
	}
	if task.Status != domain.TaskStatusDeadLetter {
		t.Fatalf("expected DEAD_LETTER despite sink failures, got %s", task.Status)
	}
}

func TestProcess_InvalidArgument(t *testing.T) {
	p, _, _, _, _ := newProcessor(t)
	if err := p.Process(context.Background(), nil, errors.New("x")); err == nil {
		t.Fatal("expected error for nil task")
	}
	if err := p.Process(context.Background(), &domain.Task{ID: "t1"}, nil); err == nil {
		t.Fatal("expected error for nil cause")
	}
}

func TestProcess_IdempotentOnAlreadyDeadLetter(t *testing.T) {
	p, store, _, _, clock := newProcessor(t)

	task := domain.NewTask("t1", "email.send", nil, time.Now())
	store.Save(context.Background(), task)

	if err := p.Process(context.Background(), task, errors.New("first")); err != nil {
		t.Fatal(err)
	}
	firstRetry := task.RetryCount

	clock.Advance(time.Minute)
	if err := p.Process(context.Background(), task, errors.New("second")); err != nil {
		t.Fatal(err)
	}

	if task.Status != domain.TaskStatusDeadLetter {
		t.Fatalf("expected status to remain DEAD_LETTER, got %s", task.Status)
	}
	if task.RetryCount != firstRetry {
		t.Fatalf("expected retry count unchanged across reprocessing, got %d vs %d", task.RetryCount, firstRetry)
	}
}
