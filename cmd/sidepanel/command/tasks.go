package command

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sidebridge/internal/services/tasks"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage tasks",
	Long:  `List, add, toggle and remove tasks kept by the background.`,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var q tasks.TaskQuery
		if cmd.Flags().Changed("completed") {
			completed, _ := cmd.Flags().GetBool("completed")
			q.Completed = &completed
		}
		priority, _ := cmd.Flags().GetString("priority")
		q.Priority = tasks.Priority(priority)
		q.Limit, _ = cmd.Flags().GetInt("limit")
		q.Offset, _ = cmd.Flags().GetInt("offset")

		return withTasks(cmd, func(c *tasks.Client) error {
			list, err := c.List(commandContext(cmd), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No tasks")
				return nil
			}
			fmt.Fprintf(out, "Tasks (%d)\n", len(list))
			fmt.Fprintln(out, "─────────────────────────────────────────────────────────")
			for _, t := range list {
				printTask(out, t)
			}
			return nil
		})
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		priority, _ := cmd.Flags().GetString("priority")

		return withTasks(cmd, func(c *tasks.Client) error {
			task, err := c.Create(commandContext(cmd), tasks.CreateTaskRequest{
				Title:       args[0],
				Description: description,
				Priority:    tasks.Priority(priority),
			})
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✔ Task created: %s\n", task.ID)
			return nil
		})
	},
}

var tasksToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Flip a task between open and completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(c *tasks.Client) error {
			task, err := c.Toggle(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), task)
			return nil
		})
	},
}

var tasksRemoveCmd = &cobra.Command{
	Use:     "rm [id]",
	Aliases: []string{"remove"},
	Short:   "Delete a task",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTasks(cmd, func(c *tasks.Client) error {
			if err := c.Delete(commandContext(cmd), args[0]); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✔ Task %s deleted\n", args[0])
			return nil
		})
	},
}

func withTasks(cmd *cobra.Command, fn func(*tasks.Client) error) error {
	caller, release, err := openCaller(cmd)
	if err != nil {
		return err
	}
	defer release()
	return fn(tasks.NewClient(caller))
}

func printTask(w io.Writer, t tasks.Task) {
	mark := "[ ]"
	if t.Completed {
		mark = "[x]"
	}
	prio := color.New(color.FgCyan)
	switch t.Priority {
	case tasks.PriorityHigh:
		prio = color.New(color.FgRed)
	case tasks.PriorityLow:
		prio = color.New(color.FgHiBlack)
	}
	fmt.Fprintf(w, "%s %s ", mark, t.Title)
	prio.Fprintf(w, "(%s)", t.Priority)
	fmt.Fprintf(w, " %s\n", t.ID)
	if t.Description != "" {
		fmt.Fprintf(w, "    %s\n", t.Description)
	}
}

func init() {
	tasksListCmd.Flags().Bool("completed", false, "only completed (or, with =false, only open) tasks")
	tasksListCmd.Flags().String("priority", "", "filter by priority: low, medium, high")
	tasksListCmd.Flags().Int("limit", 0, "maximum number of tasks")
	tasksListCmd.Flags().Int("offset", 0, "tasks to skip")

	tasksAddCmd.Flags().String("description", "", "task description")
	tasksAddCmd.Flags().String("priority", "", "low, medium or high (default medium)")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksToggleCmd)
	tasksCmd.AddCommand(tasksRemoveCmd)
	rootCmd.AddCommand(tasksCmd)
}
