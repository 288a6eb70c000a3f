package domain

import (
	"time"

	"github.com/google/uuid"
)

// Task — единица асинхронной работы, которую движок проводит через свой
// жизненный цикл (§3).
//
// Task создаётся хостом (не движком) и передаётся в Engine.Execute.
// Пока задача выполняется, ею владеет движок (markStarted → attempts →
// settle); после settle владение возвращается стору.
type Task struct {
	// ID — глобально уникальный идентификатор task (рекомендуется UUID).
	ID string `json:"task_id"`

	// Type — селектор обработчика; должен быть непустым.
	Type string `json:"type"`

	// Data — непрозрачная структурированная нагрузка задачи.
	Data map[string]any `json:"data,omitempty"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// RetryCount — неотрицательное число, монотонно не убывает (инвариант 3).
	RetryCount int `json:"retry_count"`

	// CreatedAt / UpdatedAt — UpdatedAt >= CreatedAt, обновляется при каждой мутации.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask создаёт новый Task в статусе PENDING с сгенерированным ID.
// Если id пуст, используется google/uuid.
func NewTask(id, taskType string, data map[string]any, now time.Time) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	return &Task{
		ID:        id,
		Type:      taskType,
		Data:      data,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkStarted переводит task в IN_PROGRESS и обновляет UpdatedAt.
func (t *Task) MarkStarted(now time.Time) {
	t.Status = TaskStatusInProgress
	t.UpdatedAt = now
}

// MarkCompleted переводит task в COMPLETED и фиксирует итоговый retry_count.
func (t *Task) MarkCompleted(now time.Time, retryCount int) {
	t.Status = TaskStatusCompleted
	t.RetryCount = maxInt(t.RetryCount, retryCount)
	t.UpdatedAt = now
}

// MarkFailed переводит task в FAILED (ретраябельная ошибка, лимит исчерпан).
func (t *Task) MarkFailed(now time.Time, retryCount int) {
	t.Status = TaskStatusFailed
	t.RetryCount = maxInt(t.RetryCount, retryCount)
	t.UpdatedAt = now
}

// MarkDeadLetter переводит task в DEAD_LETTER.
//
// Идемпотентно: повторный вызов на уже DEAD_LETTER task — no-op относительно
// статуса, обновляется только UpdatedAt (см. §4.4 "Idempotence").
func (t *Task) MarkDeadLetter(now time.Time, retryCount int) {
	t.Status = TaskStatusDeadLetter
	t.RetryCount = maxInt(t.RetryCount, retryCount)
	t.UpdatedAt = now
}

// Requeue возвращает FAILED/DEAD_LETTER task обратно в PENDING.
// Единственный легальный способ покинуть терминальный/FAILED статус вне
// обычного выполнения — явный admin requeue (инвариант 1).
func (t *Task) Requeue(now time.Time) bool {
	if !t.Status.CanTransitionTo(TaskStatusPending, true) {
		return false
	}
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	return true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
