// taskengine-cli — admin инструмент для инспекции и ручного восстановления
// tasks (§6.1), напрямую поверх TaskStore/Engine, без HTTP-слоя.
//
// Использование:
//
//	taskengine-cli [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task get TASK_ID
//	task list [--status=FAILED] [--type=email.send]
//	task requeue TASK_ID
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskengine/internal/cli"
	"github.com/shaiso/taskengine/internal/engine"
	"github.com/shaiso/taskengine/internal/events"
	"github.com/shaiso/taskengine/internal/ports"
	"github.com/shaiso/taskengine/internal/store/postgres"
	"github.com/shaiso/taskengine/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "taskengine-cli",
		Short:         "taskengine-cli — task engine admin tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	logger := telemetry.SetupLogger()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: failed to connect to database:", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.New(postgres.Config{Pool: pool})

	var taskStore ports.TaskStore = store
	storeFn := func() ports.TaskStore { return taskStore }

	// AdminRequeue не нуждается в Retry/DeadLetter — только Store и Events.
	// Publisher создаётся без sink'а, поэтому RECOVERED_FROM_DLQ из CLI
	// никуда не отправляется: Publish здесь — no-op.
	pub := events.New(nil, "", logger)
	e := engine.New(engine.Config{
		Store:  taskStore,
		Events: pub,
		Logger: logger,
	})
	engineFn := func() *engine.Engine { return e }

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(cli.NewTaskCmd(storeFn, engineFn, outputFn))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
