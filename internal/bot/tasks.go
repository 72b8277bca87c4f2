package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shared-planner/internal/datemath"
	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	return b.sendTaskList(ctx, msg.Chat.ID, msg.From)
}

func (b *Bot) handleWindow(ctx context.Context, chatID int64, from *tgbotapi.User, more bool) error {
	ws, err := b.workspace(ctx, chatID, from)
	if err != nil {
		return b.replyError(chatID, "Не удалось загрузить задачи", err)
	}
	if more {
		ws.planner.ShowMore()
	} else {
		ws.planner.Collapse()
	}
	return b.sendTaskList(ctx, chatID, from)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, from *tgbotapi.User) error {
	ws, err := b.workspace(ctx, chatID, from)
	if err != nil {
		return b.replyError(chatID, "Не удалось загрузить задачи", err)
	}

	list := ws.planner.ListView("", 0)
	names := b.groupNames(ctx, ws.planner.Session())
	now := b.clock.Now()

	if len(list.Tasks) == 0 && list.Hidden == 0 {
		return b.sendText(chatID, "У тебя нет задач. Добавь новую через /newtask.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Задачи на %d дн.</b>\n", list.WindowDays))
	if list.Stale {
		builder.WriteString("⚠️ <i>Нет связи с хранилищем, данные могут быть устаревшими.</i>\n")
	}
	builder.WriteByte('\n')
	for _, group := range service.GroupByPriority(list.Tasks) {
		for _, task := range group.Tasks {
			builder.WriteString(formatListTask(task, names, now))
		}
	}
	if len(list.Tasks) == 0 {
		builder.WriteString("В этом окне задач нет.\n")
	}
	if list.Hidden > 0 {
		builder.WriteString(fmt.Sprintf("\nЕщё %d задач позже. /more — показать больше.", list.Hidden))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = taskListKeyboard(list.Tasks, list.Expanded, list.Hidden)
	_, err = b.api.Send(msg)
	return err
}

func formatListTask(task model.Task, names map[string]string, now time.Time) string {
	line := service.FormatTask(task, names, now)
	status := ""
	if task.Status != model.StatusNotStarted {
		status = " · " + statusLabel(task.Status)
	}
	return fmt.Sprintf("<code>%s</code>%s %s", shortID(task.ID), status, line)
}

func (b *Bot) groupNames(ctx context.Context, session *service.Session) map[string]string {
	names := map[string]string{}
	groups, err := b.services.Groups.List(ctx, session)
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to list groups")
		return names
	}
	for _, group := range groups {
		names[group.ID] = group.Name
	}
	return names
}

// resolveTask parses the task reference of a command.
func (b *Bot) resolveTask(ctx context.Context, msg *tgbotapi.Message, ref string) (*workspace, string, error) {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return nil, "", err
	}
	taskID, err := ws.planner.ResolveTaskID(ref)
	if err != nil {
		return ws, "", err
	}
	return ws, taskID, nil
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /done 3f2a")
	}
	return b.setStatus(ctx, msg.Chat.ID, msg, args, model.StatusDone)
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		return b.sendText(msg.Chat.ID, "Формат: /status &lt;id&gt; &lt;not_started|in_progress|done|on_hold&gt;")
	}
	status, err := model.ParseStatus(fields[1])
	if err != nil {
		return b.sendText(msg.Chat.ID, "Статус: not_started, in_progress, done или on_hold.")
	}
	return b.setStatus(ctx, msg.Chat.ID, msg, fields[0], status)
}

func (b *Bot) setStatus(ctx context.Context, chatID int64, msg *tgbotapi.Message, ref string, status model.Status) error {
	ws, taskID, err := b.resolveTask(ctx, msg, ref)
	if err != nil {
		return b.replyError(chatID, "Не удалось найти задачу", err)
	}
	return b.applyStatus(ctx, chatID, ws, taskID, status)
}

func (b *Bot) applyStatus(ctx context.Context, chatID int64, ws *workspace, taskID string, status model.Status) error {
	task, _ := ws.planner.FindTask(taskID)
	if err := ws.planner.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return b.replyError(chatID, "Не удалось обновить задачу", err)
	}
	b.log.Info().Str("task_id", taskID).Str("status", string(status)).Msg("task status changed")
	return b.sendText(chatID, fmt.Sprintf("✅ Задача «%s» теперь %s.", escape(task.Title), statusLabel(status)))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 3f2a")
	}
	ws, taskID, err := b.resolveTask(ctx, msg, args)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось найти задачу", err)
	}
	return b.askDeleteConfirmation(msg.Chat.ID, msg.From.ID, ws, taskID)
}

func (b *Bot) askDeleteConfirmation(chatID, userID int64, ws *workspace, taskID string) error {
	task, ok := ws.planner.FindTask(taskID)
	if !ok {
		return b.sendText(chatID, "Задача не найдена.")
	}
	b.setConfirmation(userID, confirmationRequest{taskID: taskID, action: actionDelete})
	text := fmt.Sprintf("Удалить задачу «%s» (<code>%s</code>)?", escape(task.Title), shortID(task.ID))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
		if err != nil {
			return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
		}
		if req.action == actionDeleteSelected {
			return b.deleteSelected(ctx, msg.Chat.ID, ws)
		}
		return b.deleteTask(ctx, msg.Chat.ID, ws, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Удаление отменено.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Подтверди или отмени удаление.", confirmKeyboard())
	}
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, ws *workspace, taskID string) error {
	task, _ := ws.planner.FindTask(taskID)
	if err := ws.planner.DeleteTask(ctx, taskID); err != nil {
		return b.replyError(chatID, "Не удалось удалить задачу", err)
	}
	b.log.Info().Str("task_id", taskID).Msg("task deleted")
	return b.sendText(chatID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(task.Title)))
}

func (b *Bot) handleCalendar(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	now := b.clock.Now()
	year, month := now.Year(), now.Month()
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		if year, month, err = datemath.ParseMonth(args); err != nil {
			return b.sendText(msg.Chat.ID, "Месяц указывается как <code>2025-11</code>.")
		}
	}
	return b.sendText(msg.Chat.ID, renderCalendar(ws.planner.CalendarView(year, month)))
}

// renderCalendar draws the month grid in a monospace block. "•" marks a
// day with tasks, "!" a day with overdue tasks and brackets mark today.
func renderCalendar(cal service.Calendar) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🗓 <b>%s %d</b>\n<pre>", monthNames[cal.Month-1], cal.Year))
	builder.WriteString(" Вс  Пн  Вт  Ср  Чт  Пт  Сб\n")
	for i, day := range cal.Days {
		cell := "   "
		if day.InMonth {
			mark := " "
			switch {
			case day.Summary.Overdue:
				mark = "!"
			case day.Summary.Count > 0:
				mark = "•"
			}
			cell = fmt.Sprintf("%2d%s", day.Date.Day(), mark)
		}
		if day.Today {
			builder.WriteString("[" + cell + "]")
		} else {
			builder.WriteString(" " + cell)
		}
		if i%7 == 6 {
			builder.WriteByte('\n')
		}
	}
	builder.WriteString("</pre>")

	for _, day := range cal.Days {
		if !day.InMonth || day.Summary.Count == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("\n<b>%s</b>:", day.Date.Format("02.01")))
		for _, ind := range day.Summary.Indicators {
			title := escape(shortTitle(ind.Title, maxButtonTitleRune))
			if ind.Done {
				title = "<s>" + title + "</s>"
			}
			builder.WriteString(fmt.Sprintf(" %s %s", service.PriorityIcon(ind.Priority), title))
		}
		if day.Summary.Overflow > 0 {
			builder.WriteString(fmt.Sprintf(" +%d", day.Summary.Overflow))
		}
	}
	return builder.String()
}

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

func (b *Bot) handleDay(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	now := b.clock.Now()
	date := datemath.StartOfDay(now)
	if args := strings.TrimSpace(msg.CommandArguments()); args != "" {
		if date, err = datemath.ParseISODate(args, now.Location()); err != nil {
			return b.sendText(msg.Chat.ID, "Дата указывается как <code>2025-11-30</code>.")
		}
	}

	tasks := ws.planner.TasksForDate(date)
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("На %s задач нет.", date.Format("02.01.2006")))
	}
	names := b.groupNames(ctx, ws.planner.Session())

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📅 <b>%s</b>\n", date.Format("02.01.2006")))
	for _, group := range service.GroupByPriority(tasks) {
		builder.WriteString(fmt.Sprintf("\n<b>%s</b>\n", priorityLabel(group.Priority)))
		for _, task := range group.Tasks {
			builder.WriteString(formatListTask(task, names, now))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleShare(ctx context.Context, msg *tgbotapi.Message) error {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) < 2 {
		return b.sendText(msg.Chat.ID, "Формат: /share &lt;id&gt; &lt;группа&gt;")
	}
	ws, taskID, err := b.resolveTask(ctx, msg, fields[0])
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось найти задачу", err)
	}
	group, err := b.services.Groups.Lookup(ctx, strings.Join(fields[1:], " "))
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось найти группу", err)
	}
	copied, err := ws.planner.ShareTask(ctx, taskID, group.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось поделиться задачей", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📤 «%s» добавлена в группу %s.", escape(copied.Title), escape(group.Name)))
}
