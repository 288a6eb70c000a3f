// Package ports задаёт внешние контракты движка (§4.6): TaskStore,
// EventSink, DLQSink, Clock. Сигнатуры методов переведены из verb-shaped
// операций repo.TaskRepo (Create/GetByID/Update/ListQueued) в verb-shaped
// операции, которые называют внешние контракты движка; конкретные бэкенды
// живут в internal/store/postgres и internal/bus/rabbitmq.
package ports

import (
	"context"
	"time"

	"github.com/shaiso/taskengine/internal/domain"
)

// Page — параметры постраничной выборки для find_by_status/find_by_type.
type Page struct {
	Limit  int
	Offset int
}

// TaskStore — абстрактный контракт персистентности (§4.6, §6 схема).
type TaskStore interface {
	Save(ctx context.Context, task *domain.Task) error
	FindByID(ctx context.Context, id string) (*domain.Task, error)
	FindByStatus(ctx context.Context, status domain.TaskStatus, page Page) ([]domain.Task, error)
	FindByType(ctx context.Context, taskType string, page Page) ([]domain.Task, error)
	FindByTypeAndStatus(ctx context.Context, taskType string, status domain.TaskStatus, page Page) ([]domain.Task, error)
	FindFailedForRetry(ctx context.Context, maxRetries int) ([]domain.Task, error)
	FindStuck(ctx context.Context, threshold time.Duration) ([]domain.Task, error)
	UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error
	IncrementRetry(ctx context.Context, id string) error
	DeleteCompletedOlderThan(ctx context.Context, threshold time.Duration) (int64, error)
}

// EventSink — контракт публикации событий жизненного цикла (§4.6, §6).
// Value — JSON-кодировка {taskId, taskType, eventType, metadata, timestamp}.
type EventSink interface {
	Send(ctx context.Context, topic, key string, event domain.TaskEvent) error
}

// DLQSink — контракт отправки финализированных задач в dead-letter (§4.6, §6).
// Value — JSON-кодировка Task.
type DLQSink interface {
	Send(ctx context.Context, topic, key string, task *domain.Task) error
}

// Clock — подключаемый источник текущего времени, для тестируемости.
type Clock interface {
	Now() time.Time
}

// SystemClock — Clock поверх стандартной time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
