package domain

// TaskStatus — статус выполнения task.
//
// Жизненный цикл:
//
//	PENDING → IN_PROGRESS → COMPLETED
//	                      ↘ FAILED       (может вернуться в PENDING только через admin requeue)
//	                      ↘ DEAD_LETTER
type TaskStatus string

const (
	// TaskStatusPending — task создан, ожидает выполнения движком.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusInProgress — task выполняется движком.
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"

	// TaskStatusCompleted — task успешно завершён.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusFailed — retry-попытки исчерпаны, но последняя ошибка
	// ретраябельна; task остаётся кандидатом на ручной повторный запуск.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusDeadLetter — ошибка не ретраябельна, task финализирован
	// Dead-Letter Processor'ом и отправлен в DLQ sink.
	TaskStatusDeadLetter TaskStatus = "DEAD_LETTER"
)

// IsTerminal возвращает true для статусов, которые движок больше не трогает
// в рамках обычного выполнения (COMPLETED, DEAD_LETTER).
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusDeadLetter:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет, разрешён ли переход status → next.
//
// Обычное выполнение: PENDING→IN_PROGRESS→{COMPLETED,FAILED,DEAD_LETTER}.
// FAILED и DEAD_LETTER могут вернуться в PENDING только через явный
// admin requeue (allowAdminRequeue=true) — инвариант 1.
func (s TaskStatus) CanTransitionTo(next TaskStatus, allowAdminRequeue bool) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusInProgress
	case TaskStatusInProgress:
		switch next {
		case TaskStatusCompleted, TaskStatusFailed, TaskStatusDeadLetter:
			return true
		default:
			return false
		}
	case TaskStatusFailed, TaskStatusDeadLetter:
		return allowAdminRequeue && next == TaskStatusPending
	default:
		return false
	}
}

// EventType — тип события жизненного цикла task (аудит).
type EventType string

const (
	EventTaskCreated      EventType = "TASK_CREATED"
	EventTaskStarted      EventType = "TASK_STARTED"
	EventTaskCompleted    EventType = "TASK_COMPLETED"
	EventTaskFailed       EventType = "TASK_FAILED"
	EventRetryAttempted   EventType = "RETRY_ATTEMPTED"
	EventMovedToDLQ       EventType = "MOVED_TO_DLQ"
	EventRecoveredFromDLQ EventType = "RECOVERED_FROM_DLQ"
)
