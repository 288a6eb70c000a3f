package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/taskengine/internal/domain"
	"github.com/shaiso/taskengine/internal/engine"
	"github.com/shaiso/taskengine/internal/ports"
)

// NewTaskCmd создаёт группу команд для инспекции и ручного восстановления
// tasks (§6.1): get, list, requeue.
func NewTaskCmd(storeFn func() ports.TaskStore, engineFn func() *engine.Engine, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect and manage tasks",
	}

	cmd.AddCommand(
		newTaskGetCmd(storeFn, outputFn),
		newTaskListCmd(storeFn, outputFn),
		newTaskRequeueCmd(engineFn, outputFn),
	)

	return cmd
}

func newTaskGetCmd(storeFn func() ports.TaskStore, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "get TASK_ID",
		Short: "Show task details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storeFn()
			out := outputFn()

			task, err := store.FindByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printTasks(out, []domain.Task{*task})
			return nil
		},
	}
}

func newTaskListCmd(storeFn func() ports.TaskStore, outputFn func() *Output) *cobra.Command {
	var status string
	var taskType string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by status and/or type",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := storeFn()
			out := outputFn()

			page := ports.Page{Limit: limit, Offset: offset}

			var tasks []domain.Task
			var err error
			switch {
			case status != "" && taskType != "":
				tasks, err = store.FindByTypeAndStatus(cmd.Context(), taskType, domain.TaskStatus(status), page)
			case status != "":
				tasks, err = store.FindByStatus(cmd.Context(), domain.TaskStatus(status), page)
			case taskType != "":
				tasks, err = store.FindByType(cmd.Context(), taskType, page)
			default:
				tasks, err = store.FindByStatus(cmd.Context(), domain.TaskStatusFailed, page)
			}
			if err != nil {
				return err
			}

			printTasks(out, tasks)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, IN_PROGRESS, COMPLETED, FAILED, DEAD_LETTER)")
	cmd.Flags().StringVar(&taskType, "type", "", "Filter by task type")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the result set")

	return cmd
}

func newTaskRequeueCmd(engineFn func() *engine.Engine, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue TASK_ID",
		Short: "Re-queue a FAILED or DEAD_LETTER task back to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := engineFn()
			out := outputFn()

			task, err := e.AdminRequeue(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Task requeued: %s", task.ID))
			printTasks(out, []domain.Task{*task})
			return nil
		},
	}
}

func printTasks(out *Output, tasks []domain.Task) {
	headers := []string{"ID", "TYPE", "STATUS", "RETRY_COUNT", "UPDATED_AT"}
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{t.ID, t.Type, string(t.Status), fmt.Sprintf("%d", t.RetryCount), t.UpdatedAt.Format("2006-01-02T15:04:05Z07:00")}
	}
	out.Print(headers, rows, tasks)
}
