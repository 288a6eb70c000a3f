// Package sweeper реализует периодическое восстановление зависших tasks
// (§5 "Stuck-task recovery"), в форме scheduler.Scheduler: тонкий Tick,
// планируемый снаружи через robfig/cron/v3, обрабатывающий пачку кандидатов
// за раз и не позволяющий ошибке одного task'а прервать обработку остальных.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/taskengine/internal/engine"
	"github.com/shaiso/taskengine/internal/ports"
	"github.com/shaiso/taskengine/internal/registry"
)

// Sweeper находит IN_PROGRESS tasks, зависшие дольше Threshold, и повторно
// прогоняет их через Engine.Recover.
type Sweeper struct {
	store     ports.TaskStore
	registry  *registry.Registry
	engine    *engine.Engine
	logger    *slog.Logger
	threshold time.Duration
}

// Config — конфигурация Sweeper.
type Config struct {
	Store     ports.TaskStore
	Registry  *registry.Registry
	Engine    *engine.Engine
	Logger    *slog.Logger
	Threshold time.Duration // default: 5 минут
}

// New создаёт Sweeper.
func New(cfg Config) *Sweeper {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     cfg.Store,
		registry:  cfg.Registry,
		engine:    cfg.Engine,
		logger:    logger,
		threshold: threshold,
	}
}

// Tick выполняет один проход: находит зависшие tasks и восстанавливает
// каждый через Engine.Recover. Ошибка на одном task'е не блокирует
// обработку остальных.
func (s *Sweeper) Tick(ctx context.Context) error {
	stuck, err := s.store.FindStuck(ctx, s.threshold)
	if err != nil {
		return fmt.Errorf("find stuck tasks: %w", err)
	}

	if len(stuck) == 0 {
		return nil
	}

	s.logger.Info("found stuck tasks", "count", len(stuck))

	var recovered int
	for i := range stuck {
		task := &stuck[i]

		handler, err := s.registry.Lookup(task.Type)
		if err != nil || handler == nil {
			s.logger.Warn("no handler registered for stuck task, skipping",
				"task_id", task.ID, "task_type", task.Type)
			continue
		}

		if _, err := s.engine.Recover(ctx, task, handler); err != nil {
			s.logger.Error("failed to recover stuck task",
				"task_id", task.ID, "task_type", task.Type, "error", err)
			continue
		}
		recovered++
	}

	s.logger.Info("stuck task sweep completed", "found", len(stuck), "recovered", recovered)
	return nil
}

// Start регистрирует Tick в переданном cron-планировщике по expr (например,
// "*/30 * * * * *" при секундном разрешении) и запускает его.
func Start(c *cron.Cron, expr string, s *Sweeper) (cron.EntryID, error) {
	return c.AddFunc(expr, func() {
		if err := s.Tick(context.Background()); err != nil {
			s.logger.Error("sweeper tick failed", "error", err)
		}
	})
}
