package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

const shortIDLen = 8

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func formatDue(task model.Task) string {
	if task.DueDate == nil {
		return "-"
	}
	due := *task.DueDate
	if task.DueTime != nil && *task.DueTime != "" {
		due += " " + *task.DueTime
	}
	return due
}

func groupLabel(task model.Task, names map[string]string) string {
	if task.IsPersonal() {
		return "-"
	}
	if name, ok := names[*task.GroupID]; ok {
		return name
	}
	return shortID(*task.GroupID)
}

// writeTasks prints tasks as a table. Overdue due dates are marked with "!".
func writeTasks(w io.Writer, tasks []model.Task, names map[string]string, now time.Time) error {
	table := newTable(w)
	fmt.Fprintln(table, "ID\tDUE\tPRIORITY\tSTATUS\tTITLE\tGROUP")
	for _, task := range tasks {
		due := formatDue(task)
		if service.IsOverdue(task, now) {
			due += " !"
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(task.ID), due, task.Priority, task.Status, task.Title, groupLabel(task, names))
	}
	return table.Flush()
}

type taskJSON struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date,omitempty"`
	DueTime     string `json:"due_time,omitempty"`
	GroupID     string `json:"group_id,omitempty"`
	Group       string `json:"group,omitempty"`
	Overdue     bool   `json:"overdue"`
	Recurring   bool   `json:"recurring"`
}

func writeTasksJSON(w io.Writer, tasks []model.Task, names map[string]string, now time.Time) error {
	out := make([]taskJSON, 0, len(tasks))
	for _, task := range tasks {
		entry := taskJSON{
			ID:          task.ID,
			Title:       task.Title,
			Description: task.Description,
			Status:      string(task.Status),
			Priority:    string(task.Priority),
			Overdue:     service.IsOverdue(task, now),
			Recurring:   task.IsRecurringInstance,
		}
		if task.DueDate != nil {
			entry.DueDate = *task.DueDate
		}
		if task.DueTime != nil {
			entry.DueTime = *task.DueTime
		}
		if !task.IsPersonal() {
			entry.GroupID = *task.GroupID
			entry.Group = names[*task.GroupID]
		}
		out = append(out, entry)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
