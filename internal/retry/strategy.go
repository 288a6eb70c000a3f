// Package retry реализует Retry Strategy (§4.2): выполняет попытку через
// Handler, применяет экспоненциальный backoff с джиттером и классифицирует
// ошибки как ретраябельные/терминальные. Форма (сон между попытками,
// вычисление backoff по формуле initialDelay*2^(attempt-1), клэмп на
// maxDelay) взята из worker.calculateBackoff/executeWithRetry; классификация
// ошибок расширена до errors.As-обхода цепочки причин, с маркер-классами
// вместо HTTP-статусов.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/registry"
	"github.com/shaiso/taskengine/internal/taskerr"
	"github.com/shaiso/taskengine/internal/telemetry"
)

// Config — конфигурация Retry Strategy (§4.2).
type Config struct {
	// MaxRetries — число попыток сверх первой. По умолчанию 3.
	MaxRetries int

	// InitialDelay — база экспоненциального backoff. По умолчанию 1s.
	InitialDelay time.Duration

	// MaxDelay — клэмп для любой отдельной задержки. По умолчанию 60s.
	MaxDelay time.Duration

	// AttemptTimeout — мягкий дедлайн на одну попытку; Run оборачивает каждую
	// попытку в context.WithTimeout с этим значением. По умолчанию 5s.
	AttemptTimeout time.Duration

	// Metrics — необязательный получатель наблюдений за длительностью
	// попытки. nil допустим — Strategy тогда просто не наблюдает длительности.
	Metrics *telemetry.Metrics
}

// WithDefaults возвращает копию cfg с применёнными значениями по умолчанию.
func (cfg Config) WithDefaults() Config {
	out := cfg
	if out.MaxRetries <= 0 {
		out.MaxRetries = 3
	}
	if out.InitialDelay <= 0 {
		out.InitialDelay = time.Second
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = 60 * time.Second
	}
	if out.AttemptTimeout <= 0 {
		out.AttemptTimeout = 5 * time.Second
	}
	return out
}

// Strategy оборачивает вызов handler'а ограниченным экспоненциальным retry.
type Strategy struct {
	cfg Config
	// sleep позволяет тестам подменить фактическое ожидание.
	sleep func(ctx context.Context, d time.Duration) error
}

// New создаёт Strategy с заданной конфигурацией (дефолты применяются автоматически).
func New(cfg Config) *Strategy {
	return &Strategy{cfg: cfg.WithDefaults(), sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome — итог выполнения через Strategy: итоговый Result и число
// фактических попыток (для retry_count при settle, §9 open question).
type Outcome struct {
	Result   domain.TaskResult
	Attempts int
}

// Run выполняет task через handler, ретраит согласно конфигурации и
// возвращает итоговый TaskResult.
//
// task и handler обязательны — nil немедленно возвращает InvalidArgument
// (§4.2 "Edge cases"). attemptCtx строит контекст с дедлайном для каждой
// отдельной попытки (обычно context.WithTimeout(ctx, AttemptTimeout)).
func (s *Strategy) Run(ctx context.Context, task *domain.Task, h registry.Handler) (Outcome, error) {
	if task == nil || h == nil {
		return Outcome{}, taskerr.ErrInvalidArgument
	}

	maxAttempts := s.cfg.MaxRetries + 1
	var lastErr error

	for n := 1; n <= maxAttempts; n++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		started := time.Now()
		result, err := h.Execute(attemptCtx, task)
		s.cfg.Metrics.ObserveExecutionMillis(task.Type, float64(time.Since(started).Milliseconds()))
		cancel()

		if err == nil {
			return Outcome{Result: result, Attempts: n}, nil
		}

		lastErr = err
		retryable := Classify(err)

		if retryable && n < maxAttempts {
			delay := backoff(n, s.cfg.InitialDelay, s.cfg.MaxDelay)
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				return Outcome{}, sleepErr
			}
			continue
		}

		return Outcome{
			Result: domain.Failure{
				TaskID:    task.ID,
				Error:     fmt.Sprintf("Execution failed after %d attempts: %v", n, lastErr),
				Retryable: retryable,
			},
			Attempts: n,
		}, nil
	}

	// Недостижимо: цикл всегда возвращается изнутри при n == maxAttempts.
	return Outcome{}, lastErr
}

// backoff вычисляет delay_i = min(maxDelay, initialDelay*2^(i-1)) с небольшим
// джиттером (до 10% сверху), как рекомендовано §4.2.
func backoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	d := initialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > maxDelay {
			d = maxDelay
			break
		}
	}
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/10 + 1))
	d += jitter
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Classify определяет, является ли err (или что-либо в его цепочке причин)
// ретраябельным: RetryableError, TransientStoreError, DeadlineExceeded/Timeout
// (§4.2 "Retryable classification").
func Classify(err error) bool {
	if err == nil {
		return false
	}

	var retryableMarker *taskerr.RetryableError
	if errors.As(err, &retryableMarker) {
		return true
	}

	var transientStore *taskerr.TransientStoreError
	if errors.As(err, &transientStore) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeoutish interface{ Timeout() bool }
	if errors.As(err, &timeoutish) && timeoutish.Timeout() {
		return true
	}

	return false
}
