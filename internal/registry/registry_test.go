package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/taskerr"
)

func noopHandler(typeName string) HandlerFunc {
	return HandlerFunc{
		TypeName: typeName,
		Fn: func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
			return domain.Success{TaskID: task.ID}, nil
		},
	}
}

func TestRegister_BlankTypeFailsInvalidArgument(t *testing.T) {
	r := New(nil)
	if err := r.Register(noopHandler("")); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRegister_NilHandlerFailsInvalidArgument(t *testing.T) {
	r := New(nil)
	if err := r.Register(nil); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestLookup_BlankTypeFailsInvalidArgument(t *testing.T) {
	r := New(nil)
	if _, err := r.Lookup(""); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestLookup_MissingReturnsNilNoError(t *testing.T) {
	r := New(nil)
	h, err := r.Lookup("unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != nil {
		t.Fatalf("expected nil handler, got %v", h)
	}
}

func TestRegister_OverwriteIsLegal(t *testing.T) {
	r := New(nil)
	if err := r.Register(noopHandler("EMAIL")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(noopHandler("EMAIL")); err != nil {
		t.Fatalf("overwrite should be legal: %v", err)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 registration after overwrite, got %d", r.Count())
	}
}

func TestRemoveHasClear(t *testing.T) {
	r := New(nil)
	r.Register(noopHandler("A"))
	r.Register(noopHandler("B"))

	if !r.Has("A") || !r.Has("B") {
		t.Fatal("expected both types registered")
	}

	r.Remove("A")
	if r.Has("A") {
		t.Fatal("expected A removed")
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}

	r.Clear()
	if r.Count() != 0 {
		t.Fatalf("expected count 0 after clear, got %d", r.Count())
	}
}

// lookup и register должны свободно переплетаться, не роняя программу в race.
func TestConcurrentRegisterAndLookup(t *testing.T) {
	r := New(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		typeName := "TYPE"
		go func() {
			defer wg.Done()
			_ = r.Register(noopHandler(typeName))
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Lookup(typeName)
		}()
	}

	wg.Wait()
	if !r.Has("TYPE") {
		t.Fatal("expected TYPE to end up registered")
	}
}

func TestHotSwap_InFlightUsesSnapshot(t *testing.T) {
	r := New(nil)
	r.Register(noopHandler("A"))

	h, err := r.Lookup("A")
	if err != nil || h == nil {
		t.Fatalf("expected handler, got %v, %v", h, err)
	}

	// handler уже снят с регистрации, но in-flight попытка держит свой снимок
	r.Remove("A")

	result, err := h.Execute(context.Background(), &domain.Task{ID: "t1"})
	if err != nil {
		t.Fatalf("in-flight handler execution should still succeed: %v", err)
	}
	if _, ok := result.(domain.Success); !ok {
		t.Fatalf("expected Success, got %T", result)
	}
}
