// Package taskerr задаёт таксономию ошибок движка (§7):
// InvalidArgument, NotFound, классы ретраябельных ошибок, terminal
// HandlerError и SinkError. Все — sentinel-ошибки в стиле остального
// стека, оборачиваемые через %w и проверяемые через errors.As/errors.Is,
// а не сравнением строк.
package taskerr

import "errors"

// Общие sentinel-ошибки движка.
var (
	// ErrInvalidArgument — вызывающий передал null/пустой/несогласованный вход.
	// Возвращается синхронно, никогда не ретраится.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound — task с данным id отсутствует в сторе.
	ErrNotFound = errors.New("task not found")

	// ErrHandlerNotRegistered — в реестре нет handler'а для данного типа.
	ErrHandlerNotRegistered = errors.New("handler not registered for type")

	// ErrOrchestratorStopped зарезервирована для host-уровневых надстроек
	// (sweeper, CLI), которые останавливаются вместе с движком.
	ErrOrchestratorStopped = errors.New("engine stopped")
)

// RetryableError — маркер: ошибка, которую Retry Strategy обязана считать
// ретраябельной, независимо от того, что она оборачивает.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	if e.Err == nil {
		return "retryable error"
	}
	return "retryable: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable оборачивает err как ретраябельный. err может быть nil.
func Retryable(err error) *RetryableError {
	return &RetryableError{Err: err}
}

// TransientStoreError — маркер: ошибка стора, которая может исчезнуть при
// повторной попытке (сетевой сбой, deadlock retry, временная недоступность).
type TransientStoreError struct {
	Err error
}

func (e *TransientStoreError) Error() string {
	if e.Err == nil {
		return "transient store error"
	}
	return "transient store error: " + e.Err.Error()
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// TransientStore оборачивает err как временную ошибку стора.
func TransientStore(err error) *TransientStoreError {
	return &TransientStoreError{Err: err}
}

// HandlerError — терминальная (не ретраябельная) ошибка, поднятая
// handler'ом. Любая ошибка handler'а, не относящаяся к ретраябельному
// классу, оборачивается в HandlerError и маршрутизируется в DLQ.
type HandlerError struct {
	TaskType string
	Err      error
	Stack    string
}

func (e *HandlerError) Error() string {
	return "handler error (" + e.TaskType + "): " + e.Err.Error()
}

func (e *HandlerError) Unwrap() error { return e.Err }

// SinkError — сбой публикации в event sink или DLQ sink. Всегда логируется
// и подавляется движком; наблюдаемый результат Execute не меняется.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return "sink error (" + e.Sink + "): " + e.Err.Error()
}

func (e *SinkError) Unwrap() error { return e.Err }
