package service

import (
	"time"

	"shared-planner/internal/datemath"
	"shared-planner/internal/model"
)

const (
	// DefaultWindowDays is the collapsed list horizon.
	DefaultWindowDays = 14
	// WindowIncrement is added by every "show more".
	WindowIncrement = 20
	// MaxDayIndicators is the number of per-task markers shown in a calendar
	// cell before the rest is summarised as overflow.
	MaxDayIndicators = 3
)

// dueDay parses the task due date in loc.
func dueDay(task model.Task, loc *time.Location) (time.Time, bool) {
	if task.DueDate == nil {
		return time.Time{}, false
	}
	day, err := datemath.ParseISODate(*task.DueDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// TasksOnDate returns the tasks due on the calendar day of date.
func TasksOnDate(tasks []model.Task, date time.Time) []model.Task {
	var out []model.Task
	for _, task := range tasks {
		if day, ok := dueDay(task, date.Location()); ok && datemath.IsSameDay(day, date) {
			out = append(out, task)
		}
	}
	return out
}

// IsOverdue reports a task that is not done and whose due date falls before
// the end of today. A task due today counts as overdue.
func IsOverdue(task model.Task, now time.Time) bool {
	if task.Status == model.StatusDone {
		return false
	}
	day, ok := dueDay(task, now.Location())
	if !ok {
		return false
	}
	return day.Before(datemath.EndOfDay(now))
}

// WithinDisplayWindow keeps tasks without a due date and tasks due no later
// than days after today. Overdue tasks are kept.
func WithinDisplayWindow(tasks []model.Task, now time.Time, days int) []model.Task {
	limit := datemath.AddDays(datemath.StartOfDay(now), days)
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		day, ok := dueDay(task, now.Location())
		if !ok || datemath.CompareDays(day, limit) <= 0 {
			out = append(out, task)
		}
	}
	return out
}

// FilterByStatus keeps tasks with the given status. An empty status keeps
// everything.
func FilterByStatus(tasks []model.Task, status model.Status) []model.Task {
	if status == "" {
		return tasks
	}
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out
}

// PriorityGroup is a bucket of tasks sharing one priority.
type PriorityGroup struct {
	Priority model.Priority
	Tasks    []model.Task
}

// GroupByPriority buckets tasks as high, medium, low. Empty buckets are
// omitted and task order inside a bucket is kept.
func GroupByPriority(tasks []model.Task) []PriorityGroup {
	order := []model.Priority{model.PriorityHigh, model.PriorityMedium, model.PriorityLow}
	buckets := make(map[model.Priority][]model.Task, len(order))
	for _, task := range tasks {
		buckets[task.Priority] = append(buckets[task.Priority], task)
	}
	groups := make([]PriorityGroup, 0, len(order))
	for _, p := range order {
		if len(buckets[p]) > 0 {
			groups = append(groups, PriorityGroup{Priority: p, Tasks: buckets[p]})
		}
	}
	return groups
}

// DayIndicator is the marker of one task in a calendar cell.
type DayIndicator struct {
	TaskID   string
	Title    string
	Priority model.Priority
	Done     bool
}

// DaySummary condenses the tasks of one day for a calendar cell.
type DaySummary struct {
	Count      int
	Overdue    bool
	Breakdown  map[model.Priority]int
	Indicators []DayIndicator
	Overflow   int
}

// DayIndicatorSummary summarises tasks of a single day. At most
// MaxDayIndicators markers are returned.
func DayIndicatorSummary(tasks []model.Task, now time.Time) DaySummary {
	summary := DaySummary{
		Count:     len(tasks),
		Breakdown: make(map[model.Priority]int, 3),
	}
	for i, task := range tasks {
		summary.Breakdown[task.Priority]++
		if IsOverdue(task, now) {
			summary.Overdue = true
		}
		if i < MaxDayIndicators {
			summary.Indicators = append(summary.Indicators, DayIndicator{
				TaskID:   task.ID,
				Title:    task.Title,
				Priority: task.Priority,
				Done:     task.Status == model.StatusDone,
			})
		}
	}
	if len(tasks) > MaxDayIndicators {
		summary.Overflow = len(tasks) - MaxDayIndicators
	}
	return summary
}

// CalendarDay is one cell of the month grid.
type CalendarDay struct {
	Date    time.Time
	InMonth bool
	Today   bool
	Tasks   []model.Task
	Summary DaySummary
}

// Calendar is the 42-cell grid of a month.
type Calendar struct {
	Year  int
	Month time.Month
	Days  []CalendarDay
}

// BuildCalendar lays tasks out on the grid of the given month in the
// location of now.
func BuildCalendar(tasks []model.Task, year int, month time.Month, now time.Time) Calendar {
	cal := Calendar{Year: year, Month: month, Days: make([]CalendarDay, 0, datemath.GridSize)}
	for _, date := range datemath.CalendarGrid(year, month, now.Location()) {
		dayTasks := TasksOnDate(tasks, date)
		cal.Days = append(cal.Days, CalendarDay{
			Date:    date,
			InMonth: date.Month() == month,
			Today:   datemath.IsSameDay(date, now),
			Tasks:   dayTasks,
			Summary: DayIndicatorSummary(dayTasks, now),
		})
	}
	return cal
}

// DisplayWindow is the list horizon in days. The zero value is unusable;
// use NewDisplayWindow.
type DisplayWindow struct {
	base int
	days int
}

func NewDisplayWindow(base int) DisplayWindow {
	if base <= 0 {
		base = DefaultWindowDays
	}
	return DisplayWindow{base: base, days: base}
}

func (w DisplayWindow) Days() int { return w.days }

// Expanded reports whether ShowMore was used since the last Collapse.
func (w DisplayWindow) Expanded() bool { return w.days > w.base }

func (w *DisplayWindow) ShowMore() { w.days += WindowIncrement }

func (w *DisplayWindow) Collapse() { w.days = w.base }
