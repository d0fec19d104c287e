package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/v-sk/alice/pkg/alice/store"
)

// newTasksCmd creates the `alice tasks` command group for inspecting
// scheduled tasks directly from the database.
func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect scheduled tasks",
		Long: `Inspect the scheduled tasks stored in the database.

Examples:
  alice tasks list 12345678
  alice tasks due`,
	}

	cmd.AddCommand(
		newTasksListCmd(),
		newTasksDueCmd(),
	)

	return cmd
}

func newTasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			tasks, err := st.UserTasks(args[0])
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Println("No tasks.")
				return nil
			}
			printTasks(tasks)
			return nil
		},
	}
}

func newTasksDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List tasks due right now, across all users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			tasks, err := st.DueTasks(time.Now())
			if err != nil {
				return fmt.Errorf("listing due tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Println("Nothing due.")
				return nil
			}
			printTasks(tasks)
			return nil
		},
	}
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Database.Path)
}

func printTasks(tasks []*store.Task) {
	for _, t := range tasks {
		switch t.Type {
		case store.TaskPriceMonitor:
			fmt.Printf("#%d  %s  %s %s $%.0f  cooldown=%d  next=%s\n",
				t.ID, t.Type, t.Config.Coin, t.Config.Condition, t.Config.TargetPrice,
				t.Config.Cooldown, t.NextRun.Format(time.RFC3339))
		case store.TaskScheduledReport:
			fmt.Printf("#%d  %s  %q  interval=%dm  next=%s\n",
				t.ID, t.Type, t.Config.Topic, t.Config.Interval,
				t.NextRun.Format(time.RFC3339))
		default:
			fmt.Printf("#%d  %s  next=%s\n", t.ID, t.Type, t.NextRun.Format(time.RFC3339))
		}
	}
}
