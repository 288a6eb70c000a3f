// taskengine-demo — минимальный хост, иллюстрирующий движок целиком:
// postgres store, rabbitmq sinks, prometheus метрики и sweeper, собранные
// вместе за graceful shutdown по сигналу (§2.2 "Demo host").
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/taskengine/internal/bus/rabbitmq"
	"github.com/shaiso/taskengine/internal/deadletter"
	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/engine"
	"github.com/shaiso/taskengine/internal/events"
	"github.com/shaiso/taskengine/internal/ports"
	"github.com/shaiso/taskengine/internal/registry"
	"github.com/shaiso/taskengine/internal/retry"
	"github.com/shaiso/taskengine/internal/store/postgres"
	"github.com/shaiso/taskengine/internal/sweeper"
	"github.com/shaiso/taskengine/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting taskengine-demo")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := postgres.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := postgres.EnsureSchema(ctx, pool, "tasks"); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	store := postgres.New(postgres.Config{Pool: pool})

	topology := rabbitmq.TopologyConfig{
		EventsTopic: envOr("EVENTS_TOPIC", "taskengine.events"),
		DLQTopic:    envOr("DLQ_TOPIC", "taskengine.dlq"),
	}

	var eventSink ports.EventSink
	var dlqSink ports.DLQSink

	mqURL := envOr("RABBITMQ_URL", rabbitmq.DefaultURL())
	mqConn, err := rabbitmq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running without event/DLQ sinks", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := rabbitmq.SetupTopology(ctx, mqConn, topology); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Info("topology ready", "info", rabbitmq.TopologyInfo(topology))
		}

		eventSink = rabbitmq.NewEventSink(mqConn, logger)
		dlqSink = rabbitmq.NewDLQSink(mqConn, logger)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	pub := events.New(eventSink, topology.EventsTopic, logger)

	dl := deadletter.New(deadletter.Config{
		Store:    store,
		DLQSink:  dlqSink,
		DLQTopic: topology.DLQTopic,
		Events:   pub,
		Logger:   logger,
	})

	strategy := retry.New(retry.Config{Metrics: metrics})

	eng := engine.New(engine.Config{
		Store:      store,
		Retry:      strategy,
		Events:     pub,
		DeadLetter: dl,
		Logger:     logger,
		Metrics:    metrics,
	})

	reg := registry.New(logger)
	registerDemoHandlers(reg)

	c := cron.New()
	sw := sweeper.New(sweeper.Config{
		Store:     store,
		Registry:  reg,
		Engine:    eng,
		Logger:    logger,
		Threshold: 5 * time.Minute,
	})
	if _, err := sweeper.Start(c, "@every 30s", sw); err != nil {
		logger.Error("failed to schedule sweeper", "error", err)
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	go runDemoWorkload(ctx, eng, reg, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + envOr("DEMO_PORT", "8082")

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("taskengine-demo stopped")
}

// registerDemoHandlers регистрирует иллюстративные обработчики — реальный
// хост регистрирует свои собственные типы задач через тот же registry.Register.
func registerDemoHandlers(reg *registry.Registry) {
	_ = reg.Register(registry.HandlerFunc{
		TypeName: "demo.echo",
		Fn: func(_ context.Context, task *domain.Task) (domain.TaskResult, error) {
			return domain.Success{TaskID: task.ID, Result: task.Data}, nil
		},
	})
}

// runDemoWorkload периодически прогоняет один демонстрационный task через
// движок — показывает execute end-to-end без внешнего продюсера задач.
func runDemoWorkload(ctx context.Context, eng *engine.Engine, reg *registry.Registry, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler, err := reg.Lookup("demo.echo")
			if err != nil || handler == nil {
				continue
			}
			task := domain.NewTask("", "demo.echo", map[string]any{"greeting": "hello"}, time.Now())
			if _, err := eng.Execute(ctx, task, handler); err != nil {
				logger.Warn("demo task execution failed", "error", err)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
