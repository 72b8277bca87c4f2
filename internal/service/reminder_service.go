package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"shared-planner/internal/datemath"
	"shared-planner/internal/model"
	"shared-planner/internal/store"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	tasks      store.TaskStore
	groups     store.GroupStore
	windowDays int
}

func NewReminderService(tasks store.TaskStore, groups store.GroupStore, windowDays int) *ReminderService {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &ReminderService{tasks: tasks, groups: groups, windowDays: windowDays}
}

// Digest is the classified task set of a daily summary.
type Digest struct {
	Overdue    []model.Task
	Upcoming   []model.Task
	Unplanned  []model.Task
	GroupNames map[string]string
}

// Collect reads the user's personal and group tasks once and classifies
// the open ones.
func (s *ReminderService) Collect(ctx context.Context, user model.User, now time.Time) (Digest, error) {
	personal, err := s.tasks.ListTasks(ctx, store.TaskFilter{OwnerID: user.ID, Personal: true})
	if err != nil {
		return Digest{}, err
	}
	groups, err := s.groups.ListGroups(ctx, store.GroupFilter{MemberID: user.ID})
	if err != nil {
		return Digest{}, err
	}
	digest := Digest{GroupNames: make(map[string]string, len(groups))}
	for _, group := range groups {
		digest.GroupNames[group.ID] = group.Name
	}
	groupIDs := MemberGroupIDs(user.ID, groups)

	var grouped []model.Task
	if len(groupIDs) > 0 {
		grouped, err = s.tasks.ListTasks(ctx, store.TaskFilter{GroupIDs: groupIDs})
		if err != nil {
			return Digest{}, err
		}
	}

	for _, task := range WithinDisplayWindow(MergeTasks(user.ID, personal, grouped, groupIDs), now, s.windowDays) {
		switch {
		case task.Status == model.StatusDone:
		case IsOverdue(task, now):
			digest.Overdue = append(digest.Overdue, task)
		case task.DueDate == nil:
			digest.Unplanned = append(digest.Unplanned, task)
		default:
			digest.Upcoming = append(digest.Upcoming, task)
		}
	}
	return digest, nil
}

// DailySummary renders the digest as Telegram HTML.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	digest, err := s.Collect(ctx, user, now)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Ежедневный отчёт</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	builder.WriteString("🔥 <b>На сегодня и просроченные</b>\n")
	if len(digest.Overdue) == 0 {
		builder.WriteString("— ничего срочного\n")
	} else {
		for _, task := range digest.Overdue {
			builder.WriteString(FormatTask(task, digest.GroupNames, now))
		}
	}

	builder.WriteString(fmt.Sprintf("\n📆 <b>Ближайшие %d дн.</b>\n", s.windowDays))
	if len(digest.Upcoming) == 0 {
		builder.WriteString("— нет задач\n")
	} else {
		for _, task := range digest.Upcoming {
			builder.WriteString(FormatTask(task, digest.GroupNames, now))
		}
	}

	if len(digest.Unplanned) > 0 {
		builder.WriteString("\n🗂 <b>Без срока</b>\n")
		for _, task := range digest.Unplanned {
			builder.WriteString(FormatTask(task, digest.GroupNames, now))
		}
	}

	return strings.TrimSpace(builder.String()), nil
}

// FormatTask renders one task as a chat line: urgency and priority icons,
// title, group name, due date with days left and description.
func FormatTask(task model.Task, groupNames map[string]string, now time.Time) string {
	var sb strings.Builder

	icon := "🟢"
	due, hasDue := dueDay(task, now.Location())
	if hasDue {
		switch {
		case IsOverdue(task, now):
			icon = "⚠️"
		case datemath.CompareDays(due, datemath.AddDays(now, 2)) <= 0:
			icon = "⏳"
		}
	}

	title := html.EscapeString(strings.TrimSpace(task.Title))
	sb.WriteString(fmt.Sprintf("%s %s %s", icon, PriorityIcon(task.Priority), title))

	if task.GroupID != nil {
		if name, ok := groupNames[*task.GroupID]; ok && strings.TrimSpace(name) != "" {
			sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(strings.TrimSpace(name))))
		}
	}

	if hasDue {
		when := due.Format("02.01.2006")
		if task.DueTime != nil {
			when += " " + *task.DueTime
		}
		switch days := daysBetween(now, due); {
		case days < 0:
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · <b>просрочено</b>", when))
		case days == 0:
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · <b>сегодня</b>", when))
		default:
			sb.WriteString(fmt.Sprintf("\n   ⏰ %s · осталось %d дн.", when, days))
		}
	}

	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// PriorityIcon is the marker used for a priority in chat output.
func PriorityIcon(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return "🔴"
	case model.PriorityLow:
		return "🔵"
	default:
		return "🟡"
	}
}

// daysBetween counts calendar days from the day of now to day.
func daysBetween(now, day time.Time) int {
	from := datemath.StartOfDay(now)
	to := datemath.StartOfDay(day)
	return int(to.Sub(from).Round(24*time.Hour) / (24 * time.Hour))
}
