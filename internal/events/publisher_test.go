package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/ports/portstest"
)

func TestPublish_SendsToSink(t *testing.T) {
	sink := &portstest.EventSink{}
	p := New(sink, "task.events", nil)

	task := domain.NewTask("t1", "email.send", nil, time.Now())
	evt := domain.NewEvent(task, domain.EventTaskStarted, nil, time.Now())
	p.Publish(context.Background(), evt)

	got := sink.All()
	if len(got) != 1 || got[0].EventType != domain.EventTaskStarted {
		t.Fatalf("expected one TASK_STARTED event, got %+v", got)
	}
}

func TestPublish_NilSinkIsNoOp(t *testing.T) {
	p := New(nil, "task.events", nil)
	task := domain.NewTask("t1", "email.send", nil, time.Now())
	evt := domain.NewEvent(task, domain.EventTaskStarted, nil, time.Now())

	// Must not panic.
	p.Publish(context.Background(), evt)
}

func TestPublish_SinkErrorIsSwallowed(t *testing.T) {
	sink := &portstest.EventSink{Err: errors.New("broker unavailable")}
	p := New(sink, "task.events", nil)

	task := domain.NewTask("t1", "email.send", nil, time.Now())
	evt := domain.NewEvent(task, domain.EventTaskStarted, nil, time.Now())

	p.Publish(context.Background(), evt)

	if len(sink.All()) != 0 {
		t.Fatalf("expected no event recorded when Send fails, got %+v", sink.All())
	}
}
