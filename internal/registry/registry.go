// Package registry реализует type→handler диспетчеризацию (§4.1).
//
// Форма реестра унаследована от worker.Registry (map + Register/Get),
// обобщённая до потокобезопасной версии: lookup и register должны уметь
// переплетаться произвольно, и register должен публиковать новую карту
// атомарно, без удержания блокировки поперёк execute. Вместо мьютекса
// на карте используется copy-on-write через atomic.Pointer — тот же дух,
// что и atomic-swap реконнект в mq.Connection, просто применённый к карте
// вместо соединения.
package registry

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/taskerr"
)

// Handler выполняет один тип task.
type Handler interface {
	// Type возвращает селектор, под которым handler зарегистрирован.
	Type() string

	// Execute выполняет одну попытку. Ошибка, оборачивающая
	// taskerr.RetryableError/TransientStoreError, или context.DeadlineExceeded
	// классифицируется Retry Strategy как ретраябельная; любая другая ошибка
	// — терминальная.
	Execute(ctx context.Context, task *domain.Task) (domain.TaskResult, error)
}

// HandlerFunc адаптирует обычную функцию к интерфейсу Handler.
type HandlerFunc struct {
	TypeName string
	Fn       func(ctx context.Context, task *domain.Task) (domain.TaskResult, error)
}

func (h HandlerFunc) Type() string { return h.TypeName }

func (h HandlerFunc) Execute(ctx context.Context, task *domain.Task) (domain.TaskResult, error) {
	return h.Fn(ctx, task)
}

// Registry — потокобезопасный реестр обработчиков по типу.
type Registry struct {
	m      atomic.Pointer[map[string]Handler]
	logger *slog.Logger
}

// New создаёт пустой реестр. logger может быть nil — тогда используется
// slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	empty := map[string]Handler{}
	r.m.Store(&empty)
	return r
}

// Register добавляет или заменяет handler для его Type().
//
// Пустой Type() — InvalidArgument. Перезапись легальна и логируется;
// уже выполняющиеся попытки продолжают использовать снимок handler'а,
// захваченный при их собственном Lookup (§9 "Handler Registry hot-swap").
func (r *Registry) Register(h Handler) error {
	if h == nil || h.Type() == "" {
		return taskerr.ErrInvalidArgument
	}

	for {
		old := r.m.Load()
		next := make(map[string]Handler, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		_, overwrote := next[h.Type()]
		next[h.Type()] = h
		if r.m.CompareAndSwap(old, &next) {
			if overwrote {
				r.logger.Info("handler registration overwritten", "type", h.Type())
			} else {
				r.logger.Info("handler registered", "type", h.Type())
			}
			return nil
		}
	}
}

// Lookup возвращает handler для type, либо (nil, nil) если не найден.
// Пустой type — InvalidArgument.
func (r *Registry) Lookup(taskType string) (Handler, error) {
	if taskType == "" {
		return nil, taskerr.ErrInvalidArgument
	}
	m := r.m.Load()
	h, ok := (*m)[taskType]
	if !ok {
		return nil, nil
	}
	return h, nil
}

// Remove удаляет handler для type, если он зарегистрирован.
func (r *Registry) Remove(taskType string) {
	for {
		old := r.m.Load()
		if _, ok := (*old)[taskType]; !ok {
			return
		}
		next := make(map[string]Handler, len(*old))
		for k, v := range *old {
			if k != taskType {
				next[k] = v
			}
		}
		if r.m.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Has сообщает, зарегистрирован ли type.
func (r *Registry) Has(taskType string) bool {
	m := r.m.Load()
	_, ok := (*m)[taskType]
	return ok
}

// Count возвращает число зарегистрированных типов.
func (r *Registry) Count() int {
	m := r.m.Load()
	return len(*m)
}

// Clear удаляет все регистрации.
func (r *Registry) Clear() {
	empty := map[string]Handler{}
	r.m.Store(&empty)
}
