// Package postgres реализует ports.TaskStore поверх jackc/pgx/v5,
// следуя стилю repo.TaskRepo: typed scan helpers, JSON-колонки для
// непрозрачных полей, обёртка ошибок через %w. data сериализуется
// в JSON-колонку и декодируется лениво на границе домена.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/ports"
	"github.com/shaiso/taskengine/internal/taskerr"
)

// TaskStore — ports.TaskStore поверх Postgres.
type TaskStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// Config — настройки TaskStore (§6 "schema_name, table_prefix, tasks_table_name").
type Config struct {
	Pool      *pgxpool.Pool
	TableName string // default "tasks"
}

// New создаёт TaskStore.
func New(cfg Config) *TaskStore {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "tasks"
	}
	return &TaskStore{pool: cfg.Pool, tableName: tableName}
}

// Save выполняет upsert: вставляет новый task либо обновляет существующий
// по task_id (инвариант 4 "re-submitting the same id is idempotent").
func (s *TaskStore) Save(ctx context.Context, task *domain.Task) error {
	dataJSON, err := json.Marshal(task.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (task_id, type, status, data, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO UPDATE SET
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			retry_count = EXCLUDED.retry_count,
			updated_at = EXCLUDED.updated_at
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		task.ID,
		task.Type,
		string(task.Status),
		dataJSON,
		task.RetryCount,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// FindByID возвращает task по ID.
func (s *TaskStore) FindByID(ctx context.Context, id string) (*domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT task_id, type, status, data, retry_count, created_at, updated_at
		FROM %s WHERE task_id = $1
	`, s.tableName)
	return s.scanTask(s.pool.QueryRow(ctx, query, id))
}

// FindByStatus возвращает tasks в заданном статусе, постранично.
func (s *TaskStore) FindByStatus(ctx context.Context, status domain.TaskStatus, page ports.Page) ([]domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT task_id, type, status, data, retry_count, created_at, updated_at
		FROM %s WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, s.tableName)
	rows, err := s.pool.Query(ctx, query, string(status), limitOrDefault(page.Limit), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("find by status: %w", err)
	}
	defer rows.Close()
	return s.scanTasks(rows)
}

// FindByType возвращает tasks заданного типа, постранично.
func (s *TaskStore) FindByType(ctx context.Context, taskType string, page ports.Page) ([]domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT task_id, type, status, data, retry_count, created_at, updated_at
		FROM %s WHERE type = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, s.tableName)
	rows, err := s.pool.Query(ctx, query, taskType, limitOrDefault(page.Limit), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("find by type: %w", err)
	}
	defer rows.Close()
	return s.scanTasks(rows)
}

// FindByTypeAndStatus комбинирует type и status фильтры.
func (s *TaskStore) FindByTypeAndStatus(ctx context.Context, taskType string, status domain.TaskStatus, page ports.Page) ([]domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT task_id, type, status, data, retry_count, created_at, updated_at
		FROM %s WHERE type = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4
	`, s.tableName)
	rows, err := s.pool.Query(ctx, query, taskType, string(status), limitOrDefault(page.Limit), page.Offset)
	if err != nil {
		return nil, fmt.Errorf("find by type and status: %w", err)
	}
	defer rows.Close()
	return s.scanTasks(rows)
}

// FindFailedForRetry возвращает FAILED tasks, чей retry_count ниже maxRetries
// — кандидаты на admin requeue.
func (s *TaskStore) FindFailedForRetry(ctx context.Context, maxRetries int) ([]domain.Task, error) {
	query := fmt.Sprintf(`
		SELECT task_id, type, status, data, retry_count, created_at, updated_at
		FROM %s WHERE status = $1 AND retry_count < $2
		ORDER BY updated_at ASC
	`, s.tableName)
	rows, err := s.pool.Query(ctx, query, string(domain.TaskStatusFailed), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("find failed for retry: %w", err)
	}
	defer rows.Close()
	return s.scanTasks(rows)
}

// FindStuck возвращает IN_PROGRESS tasks не обновлявшиеся дольше threshold —
// кандидаты для stuck-task sweeper'а (§5).
func (s *TaskStore) FindStuck(ctx context.Context, threshold time.Duration) ([]domain.Task, error) {
	cutoff := time.Now().Add(-threshold)
	query := fmt.Sprintf(`
		SELECT task_id, type, status, data, retry_count, created_at, updated_at
		FROM %s WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
	`, s.tableName)
	rows, err := s.pool.Query(ctx, query, string(domain.TaskStatusInProgress), cutoff)
	if err != nil {
		return nil, fmt.Errorf("find stuck: %w", err)
	}
	defer rows.Close()
	return s.scanTasks(rows)
}

// UpdateStatus обновляет только status и updated_at, не трогая retry_count
// и data (в отличие от Save).
func (s *TaskStore) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, updated_at = $3 WHERE task_id = $1`, s.tableName)
	result, err := s.pool.Exec(ctx, query, id, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return taskerr.ErrNotFound
	}
	return nil
}

// IncrementRetry увеличивает retry_count на единицу.
func (s *TaskStore) IncrementRetry(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET retry_count = retry_count + 1, updated_at = $2 WHERE task_id = $1`, s.tableName)
	result, err := s.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return taskerr.ErrNotFound
	}
	return nil
}

// DeleteCompletedOlderThan удаляет COMPLETED tasks старше threshold —
// ретеншн-уборка, которую хост может запускать по расписанию рядом со
// sweeper'ом.
func (s *TaskStore) DeleteCompletedOlderThan(ctx context.Context, threshold time.Duration) (int64, error) {
	cutoff := time.Now().Add(-threshold)
	query := fmt.Sprintf(`DELETE FROM %s WHERE status = $1 AND updated_at < $2`, s.tableName)
	result, err := s.pool.Exec(ctx, query, string(domain.TaskStatusCompleted), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete completed: %w", err)
	}
	return result.RowsAffected(), nil
}

func (s *TaskStore) scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	var status string
	var dataJSON []byte

	err := row.Scan(&task.ID, &task.Type, &status, &dataJSON, &task.RetryCount, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, taskerr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.TaskStatus(status)
	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &task.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return &task, nil
}

func (s *TaskStore) scanTasks(rows pgx.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		var task domain.Task
		var status string
		var dataJSON []byte

		if err := rows.Scan(&task.ID, &task.Type, &status, &dataJSON, &task.RetryCount, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.Status = domain.TaskStatus(status)
		if dataJSON != nil {
			if err := json.Unmarshal(dataJSON, &task.Data); err != nil {
				return nil, fmt.Errorf("unmarshal data: %w", err)
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
