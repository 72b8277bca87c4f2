package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Create a task or a recurring series",
	Long: `Create a personal task, or a group task with --group.

With --repeat the task is expanded into one dated instance per step from
--due to --until. Monthly steps keep the day of month when possible and
clamp to the last day of shorter months.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks inside the display window",
	Args:  cobra.NoArgs,
	RunE:  runTaskList,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status TASK STATUS",
	Short: "Change the status of a task (not_started, in_progress, done, on_hold)",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete TASK...",
	Short: "Delete one or more tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskDelete,
}

var taskShareCmd = &cobra.Command{
	Use:   "share TASK GROUP",
	Short: "Copy a task into a group",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskShare,
}

func init() {
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	taskCmd.AddCommand(taskShareCmd)

	addFlags := taskAddCmd.Flags()
	addFlags.String("desc", "", "Description")
	addFlags.String("due", "", "Due date (YYYY-MM-DD)")
	addFlags.String("time", "", "Due time (HH:MM)")
	addFlags.String("priority", string(model.PriorityMedium), "high, medium or low")
	addFlags.String("status", string(model.StatusNotStarted), "Initial status")
	addFlags.String("group", "", "Group ID or name for a group task")
	addFlags.String("repeat", "", "daily, weekly or monthly")
	addFlags.String("until", "", "Last date of the series (YYYY-MM-DD)")

	taskListCmd.Flags().String("status", "", "Only tasks with this status")
	taskListCmd.Flags().Int("days", 0, "Display window in days (default DISPLAY_WINDOW_DAYS)")
	taskListCmd.Flags().Bool("json", false, "Print JSON")

	taskDeleteCmd.Flags().BoolP("yes", "y", false, "Delete without asking")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	desc, _ := flags.GetString("desc")
	due, _ := flags.GetString("due")
	dueTime, _ := flags.GetString("time")
	rawPriority, _ := flags.GetString("priority")
	rawStatus, _ := flags.GetString("status")
	groupRef, _ := flags.GetString("group")
	repeat, _ := flags.GetString("repeat")
	until, _ := flags.GetString("until")

	priority, err := model.ParsePriority(rawPriority)
	if err != nil {
		return err
	}
	status, err := model.ParseStatus(rawStatus)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		session, err := a.session(ctx)
		if err != nil {
			return err
		}
		input := service.TaskInput{
			Title:             args[0],
			Description:       desc,
			Status:            status,
			Priority:          priority,
			DueDate:           due,
			DueTime:           dueTime,
			RecurrenceKind:    model.RecurrenceKind(strings.ToLower(strings.TrimSpace(repeat))),
			RecurrenceEndDate: until,
		}
		if groupRef != "" {
			group, err := a.services.Groups.Lookup(ctx, groupRef)
			if err != nil {
				return err
			}
			input.GroupID = group.ID
		}

		out := cmd.OutOrStdout()
		if !input.IsRecurring() {
			task, err := a.services.Tasks.CreateTask(ctx, session, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created task %s %q\n", shortID(task.ID), task.Title)
			return nil
		}

		created, err := a.services.Tasks.CreateRecurringTask(ctx, session, input)
		if batchErr, ok := service.IsPartial(err); ok {
			fmt.Fprintf(out, "Created %d instances, %s\n", len(created), batchErr.Summary())
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created %d instances of %q\n", len(created), input.Title)
		return nil
	})
}

func runTaskList(cmd *cobra.Command, args []string) error {
	rawStatus, _ := cmd.Flags().GetString("status")
	days, _ := cmd.Flags().GetInt("days")
	asJSON, _ := cmd.Flags().GetBool("json")

	var status model.Status
	if rawStatus != "" {
		parsed, err := model.ParseStatus(rawStatus)
		if err != nil {
			return err
		}
		status = parsed
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.planner(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		names := a.groupNames(ctx, p.Session())
		list := p.ListView(status, days)
		now := a.clock.Now()
		out := cmd.OutOrStdout()
		if asJSON {
			return writeTasksJSON(out, list.Tasks, names, now)
		}

		if list.Stale {
			fmt.Fprintf(out, "Showing cached tasks: %v\n", list.Err)
		}
		if len(list.Tasks) == 0 {
			fmt.Fprintf(out, "No tasks in the next %d days.\n", list.WindowDays)
		} else if err := writeTasks(out, list.Tasks, names, now); err != nil {
			return err
		}
		if list.Hidden > 0 {
			fmt.Fprintf(out, "%d more task(s) after %d days, use --days to see them.\n", list.Hidden, list.WindowDays)
		}
		return nil
	})
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	status, err := model.ParseStatus(args[1])
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.planner(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		taskID, err := p.ResolveTaskID(args[0])
		if err != nil {
			return err
		}
		if err := p.UpdateTaskStatus(ctx, taskID, status); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", shortID(taskID), status)
		return nil
	})
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.planner(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		ids := make([]string, 0, len(args))
		for _, ref := range args {
			id, err := p.ResolveTaskID(ref)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		out := cmd.OutOrStdout()
		if !yes && !confirm(cmd, fmt.Sprintf("Delete %d task(s)?", len(ids))) {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}

		deleted, err := p.DeleteTasks(ctx, ids)
		if batchErr, ok := service.IsPartial(err); ok {
			fmt.Fprintf(out, "Deleted %d task(s), %s\n", len(deleted), batchErr.Summary())
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d task(s)\n", len(deleted))
		return nil
	})
}

func runTaskShare(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.planner(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		taskID, err := p.ResolveTaskID(args[0])
		if err != nil {
			return err
		}
		group, err := a.services.Groups.Lookup(ctx, args[1])
		if err != nil {
			return err
		}
		copied, err := p.ShareTask(ctx, taskID, group.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Shared as %s %q in %s\n", shortID(copied.ID), copied.Title, group.Name)
		return nil
	})
}

// confirm asks a yes/no question on the command's input.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "да":
		return true
	}
	return false
}
