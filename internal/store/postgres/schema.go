package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema создаёт таблицы tasks/task_events, если их ещё нет (§6
// "auto_initialize"). Миграции в полном смысле — забота хоста; это
// удобство для демо и локальной разработки, не production-инструмент.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	if tableName == "" {
		tableName = "tasks"
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			task_id     VARCHAR(36) PRIMARY KEY,
			type        VARCHAR(100) NOT NULL,
			status      VARCHAR(20) NOT NULL CHECK (status IN ('PENDING','IN_PROGRESS','COMPLETED','FAILED','DEAD_LETTER')),
			data        JSON,
			handler_url VARCHAR(255),
			retry_count INT NOT NULL DEFAULT 0,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s (status);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_type_status ON %[1]s (type, status);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s (updated_at);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_status_updated_at ON %[1]s (status, updated_at);

		CREATE TABLE IF NOT EXISTS task_events (
			event_id   VARCHAR(36) PRIMARY KEY,
			task_id    VARCHAR(36) NOT NULL REFERENCES %[1]s(task_id) ON DELETE CASCADE,
			event_type VARCHAR(50) NOT NULL CHECK (event_type IN (
				'TASK_CREATED','TASK_STARTED','TASK_COMPLETED','TASK_FAILED',
				'RETRY_ATTEMPTED','MOVED_TO_DLQ','RECOVERED_FROM_DLQ'
			)),
			metadata   JSON,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_task_events_task_id ON task_events (task_id);
		CREATE INDEX IF NOT EXISTS idx_task_events_created_at ON task_events (created_at);
		CREATE INDEX IF NOT EXISTS idx_task_events_event_type ON task_events (event_type);
	`, tableName)

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
