package domain

import "time"

// TaskEvent — неизменяемая аудит-запись перехода в жизненном цикле task.
//
// Движок никогда не мутирует событие после создания; после отправки в
// EventSink владение событием переходит стору (§3 "Lifecycle").
type TaskEvent struct {
	TaskID    string         `json:"taskId"`
	TaskType  string         `json:"taskType"`
	EventType EventType      `json:"eventType"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent строит TaskEvent для task, штампуя now.
func NewEvent(task *Task, eventType EventType, metadata map[string]any, now time.Time) TaskEvent {
	return TaskEvent{
		TaskID:    task.ID,
		TaskType:  task.Type,
		EventType: eventType,
		Metadata:  metadata,
		Timestamp: now,
	}
}
