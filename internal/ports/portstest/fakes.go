// Package portstest содержит in-memory фейки ports.TaskStore, ports.EventSink
// и ports.DLQSink, используемые в тестах этого модуля вместо мок-фреймворка.
package portstest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/ports"
)

// Store — in-memory ports.TaskStore.
type Store struct {
	mu    sync.Mutex
	tasks map[string]domain.Task

	// SaveErr, если не nil, возвращается следующими N вызовами Save
	// (расходуется по одному) вместо реального сохранения.
	SaveErr []error
	saveN   int

	// Saves хранит копию каждого task, переданного в Save, по порядку —
	// используется тестами, проверяющими последовательность persisted статусов.
	Saves []domain.Task
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]domain.Task)}
}

func (s *Store) Save(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveN < len(s.SaveErr) {
		err := s.SaveErr[s.saveN]
		s.saveN++
		if err != nil {
			return err
		}
	}

	s.tasks[task.ID] = *task
	s.Saves = append(s.Saves, *task)
	return nil
}

func (s *Store) FindByID(_ context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &t, nil
}

func (s *Store) FindByStatus(_ context.Context, status domain.TaskStatus, _ ports.Page) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) FindByType(_ context.Context, taskType string, _ ports.Page) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) FindByTypeAndStatus(_ context.Context, taskType string, status domain.TaskStatus, _ ports.Page) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Type == taskType && t.Status == status {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) FindFailedForRetry(_ context.Context, _ int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Status == domain.TaskStatusFailed {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) FindStuck(_ context.Context, threshold time.Duration) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Status == domain.TaskStatusInProgress && t.UpdatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out, nil
}

func (s *Store) UpdateStatus(_ context.Context, id string, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	return nil
}

func (s *Store) IncrementRetry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return errors.New("not found")
	}
	t.RetryCount++
	s.tasks[id] = t
	return nil
}

func (s *Store) DeleteCompletedOlderThan(_ context.Context, threshold time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-threshold)
	var n int64
	for id, t := range s.tasks {
		if t.Status == domain.TaskStatusCompleted && t.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}

func sortByID(tasks []domain.Task) {
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
}

// EventSink — in-memory ports.EventSink.
type EventSink struct {
	mu     sync.Mutex
	Events []domain.TaskEvent
	Err    error
}

func (e *EventSink) Send(_ context.Context, _, _ string, event domain.TaskEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.Events = append(e.Events, event)
	return nil
}

func (e *EventSink) All() []domain.TaskEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TaskEvent, len(e.Events))
	copy(out, e.Events)
	return out
}

// DLQSink — in-memory ports.DLQSink.
type DLQSink struct {
	mu    sync.Mutex
	Tasks []domain.Task
	Err   error
}

func (d *DLQSink) Send(_ context.Context, _, _ string, task *domain.Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Tasks = append(d.Tasks, *task)
	return nil
}

// Clock — настраиваемый ports.Clock для детерминированных тестов.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
