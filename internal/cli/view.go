package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"shared-planner/internal/config"
	"shared-planner/internal/datemath"
	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar [YYYY-MM]",
	Short: "Show a month of tasks",
	Long: `Show the six-week grid of a month. Days with tasks are marked with "*",
days with overdue tasks with "!".`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalendar,
}

var dayCmd = &cobra.Command{
	Use:   "day [YYYY-MM-DD]",
	Short: "Show the tasks due on a day, by priority",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDay,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the daily digest",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Describe the environment variables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
		return nil
	},
}

func init() {
	dayCmd.Flags().Bool("json", false, "Print JSON")
}

func runCalendar(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		now := a.clock.Now()
		year, month := now.Year(), now.Month()
		if len(args) == 1 {
			var err error
			if year, month, err = datemath.ParseMonth(args[0]); err != nil {
				return err
			}
		}

		p, err := a.planner(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		writeCalendar(cmd.OutOrStdout(), p.CalendarView(year, month))
		return nil
	})
}

func writeCalendar(w io.Writer, cal service.Calendar) {
	fmt.Fprintf(w, "%s %d\n", cal.Month, cal.Year)
	fmt.Fprintln(w, " Su  Mo  Tu  We  Th  Fr  Sa")
	for i, day := range cal.Days {
		mark := " "
		switch {
		case !day.InMonth:
		case day.Summary.Overdue:
			mark = "!"
		case day.Summary.Count > 0:
			mark = "*"
		}
		num := fmt.Sprintf("%2d", day.Date.Day())
		if !day.InMonth {
			num = " ."
		}
		if day.Today {
			fmt.Fprintf(w, "[%s]", num+mark)
		} else {
			fmt.Fprintf(w, " %s", num+mark)
		}
		if i%7 == 6 {
			fmt.Fprintln(w)
		}
	}

	var busy []service.CalendarDay
	for _, day := range cal.Days {
		if day.InMonth && day.Summary.Count > 0 {
			busy = append(busy, day)
		}
	}
	if len(busy) == 0 {
		return
	}
	fmt.Fprintln(w)
	table := newTable(w)
	for _, day := range busy {
		titles := make([]string, 0, len(day.Summary.Indicators))
		for _, ind := range day.Summary.Indicators {
			titles = append(titles, ind.Title)
		}
		line := strings.Join(titles, ", ")
		if day.Summary.Overflow > 0 {
			line += fmt.Sprintf(" +%d", day.Summary.Overflow)
		}
		fmt.Fprintf(table, "%s\t%d\t%s\n", datemath.FormatISODate(day.Date), day.Summary.Count, line)
	}
	table.Flush()
}

func runDay(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		now := a.clock.Now()
		date := datemath.StartOfDay(now)
		if len(args) == 1 {
			var err error
			if date, err = datemath.ParseISODate(args[0], a.loc); err != nil {
				return err
			}
		}

		p, err := a.planner(ctx)
		if err != nil {
			return err
		}
		defer p.Close()

		names := a.groupNames(ctx, p.Session())
		tasks := p.TasksForDate(date)
		out := cmd.OutOrStdout()
		if asJSON {
			return writeTasksJSON(out, tasks, names, now)
		}
		if len(tasks) == 0 {
			fmt.Fprintf(out, "Nothing due on %s.\n", datemath.FormatISODate(date))
			return nil
		}
		for _, group := range service.GroupByPriority(tasks) {
			fmt.Fprintf(out, "%s (%d)\n", strings.ToUpper(string(group.Priority)), len(group.Tasks))
			if err := writeTasks(out, group.Tasks, names, now); err != nil {
				return err
			}
			fmt.Fprintln(out)
		}
		return nil
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		user, err := a.lookupUser(ctx, userRef)
		if err != nil {
			return err
		}
		now := a.clock.Now()
		digest, err := a.reminders.Collect(ctx, *user, now)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Daily report for %s, %s\n", user.DisplayName, datemath.FormatISODate(now))
		sections := []struct {
			title string
			tasks []model.Task
		}{
			{"Today and overdue", digest.Overdue},
			{fmt.Sprintf("Next %d days", a.cfg.DisplayWindowDays), digest.Upcoming},
			{"No due date", digest.Unplanned},
		}
		for _, section := range sections {
			fmt.Fprintf(out, "\n%s\n", section.title)
			if len(section.tasks) == 0 {
				fmt.Fprintln(out, "  nothing")
				continue
			}
			if err := writeTasks(out, section.tasks, digest.GroupNames, now); err != nil {
				return err
			}
		}
		return nil
	})
}
