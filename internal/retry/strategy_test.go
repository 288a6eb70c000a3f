package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/registry"
	"github.com/shaiso/taskengine/internal/taskerr"
)

func noSleep() func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error { return nil }
}

func attemptCounter(fn func(attempt int) (domain.TaskResult, error)) registry.Handler {
	n := 0
	return registry.HandlerFunc{
		TypeName: "T",
		Fn: func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
			n++
			return fn(n)
		},
	}
}

func TestRun_SuccessFirstTry(t *testing.T) {
	s := New(Config{})
	s.sleep = noSleep()

	h := attemptCounter(func(attempt int) (domain.TaskResult, error) {
		return domain.Success{TaskID: "t1"}, nil
	})

	outcome, err := s.Run(context.Background(), &domain.Task{ID: "t1"}, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", outcome.Attempts)
	}
	if _, ok := outcome.Result.(domain.Success); !ok {
		t.Fatalf("expected Success, got %T", outcome.Result)
	}
}

func TestRun_RetryThenSucceed(t *testing.T) {
	s := New(Config{MaxRetries: 3})
	s.sleep = noSleep()

	h := attemptCounter(func(attempt int) (domain.TaskResult, error) {
		if attempt < 3 {
			return nil, taskerr.Retryable(errors.New("transient"))
		}
		return domain.Success{TaskID: "t1"}, nil
	})

	outcome, err := s.Run(context.Background(), &domain.Task{ID: "t1"}, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", outcome.Attempts)
	}
}

func TestRun_NonRetryableFailsImmediately(t *testing.T) {
	s := New(Config{MaxRetries: 5})
	s.sleep = noSleep()

	h := attemptCounter(func(attempt int) (domain.TaskResult, error) {
		return nil, errors.New("permanent failure")
	})

	outcome, err := s.Run(context.Background(), &domain.Task{ID: "t1"}, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("expected 1 attempt for non-retryable error, got %d", outcome.Attempts)
	}
	f, ok := outcome.Result.(domain.Failure)
	if !ok {
		t.Fatalf("expected Failure, got %T", outcome.Result)
	}
	if f.Retryable {
		t.Fatal("expected Retryable=false")
	}
}

func TestRun_ExhaustedRetriesEndsFailed(t *testing.T) {
	s := New(Config{MaxRetries: 2})
	s.sleep = noSleep()

	h := attemptCounter(func(attempt int) (domain.TaskResult, error) {
		return nil, taskerr.Retryable(errors.New("always fails"))
	})

	outcome, err := s.Run(context.Background(), &domain.Task{ID: "t1"}, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", outcome.Attempts)
	}
	f, ok := outcome.Result.(domain.Failure)
	if !ok {
		t.Fatalf("expected Failure, got %T", outcome.Result)
	}
	if !f.Retryable {
		t.Fatal("expected Retryable=true — exhausted retries on a retryable error lands in FAILED, not DEAD_LETTER")
	}
}

func TestRun_InvalidArgument(t *testing.T) {
	s := New(Config{})
	if _, err := s.Run(context.Background(), nil, registry.HandlerFunc{}); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument for nil task, got %v", err)
	}
	if _, err := s.Run(context.Background(), &domain.Task{ID: "t1"}, nil); err != taskerr.ErrInvalidArgument {
		t.Fatalf("expected InvalidArgument for nil handler, got %v", err)
	}
}

func TestRun_ContextCancelledDuringBackoffPropagates(t *testing.T) {
	s := New(Config{MaxRetries: 3})
	s.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	h := attemptCounter(func(attempt int) (domain.TaskResult, error) {
		return nil, taskerr.Retryable(errors.New("transient"))
	})

	_, err := s.Run(context.Background(), &domain.Task{ID: "t1"}, h)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff_ClampsToMaxDelay(t *testing.T) {
	d := backoff(10, time.Second, 5*time.Second)
	if d > 5*time.Second+500*time.Millisecond {
		t.Fatalf("expected backoff clamped near max_delay, got %v", d)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable marker", taskerr.Retryable(errors.New("x")), true},
		{"transient store", taskerr.TransientStore(errors.New("x")), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped retryable", errorsWrap(taskerr.Retryable(errors.New("x"))), true},
		{"plain error", errors.New("permanent"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.err); got != c.want {
				t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func errorsWrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
