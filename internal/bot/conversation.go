package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shared-planner/internal/datemath"
	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	groups, err := b.services.Groups.List(ctx, ws.planner.Session())
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to list groups for new task")
	}

	b.log.Info().Int64("telegram_id", msg.From.ID).Msg("start new task conversation")
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle, groups: groups})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Создаём новую задачу.\n<b>Шаг 1:</b> как её назвать?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Название не может быть пустым.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Добавь короткое описание (или нажми «Пропустить»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Укажи срок в формате <code>2025-11-30</code> (или «Пропустить»).", skipKeyboard())
	case stageDueDate:
		if isSkipInput(text) {
			state.stage = stagePriority
			return b.sendWithReplyMarkup(msg.Chat.ID, "🎯 Выбери приоритет.", priorityKeyboard())
		}
		if _, err := datemath.ParseISODate(text, b.clock.Now().Location()); err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2025-11-30</code> или «Пропустить».", skipKeyboard())
		}
		state.input.DueDate = text
		state.stage = stageDueTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "🕒 Во сколько? Формат <code>09:30</code> (или «Пропустить»).", skipKeyboard())
	case stageDueTime:
		if !isSkipInput(text) {
			normalized, err := datemath.ParseClock(text)
			if err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Время указывается как <code>09:30</code>.", skipKeyboard())
			}
			state.input.DueTime = normalized
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "🎯 Выбери приоритет.", priorityKeyboard())
	case stagePriority:
		priority, ok := parsePriorityInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Нажми одну из кнопок приоритета.", priorityKeyboard())
		}
		state.input.Priority = priority
		if state.input.DueDate == "" {
			return b.askGroupOrFinish(ctx, msg, state)
		}
		state.stage = stageRecurrence
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 Повторять задачу?", recurrenceKeyboard())
	case stageRecurrence:
		kind, ok := parseRecurrenceInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери вариант повтора кнопкой.", recurrenceKeyboard())
		}
		if kind == "" {
			return b.askGroupOrFinish(ctx, msg, state)
		}
		state.input.RecurrenceKind = kind
		state.stage = stageRecurrenceEnd
		return b.sendWithReplyMarkup(msg.Chat.ID, "📆 До какой даты повторять? Формат <code>2025-12-31</code>.", cancelKeyboard())
	case stageRecurrenceEnd:
		if _, err := datemath.ParseISODate(text, b.clock.Now().Location()); err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Не могу распознать дату. Используй формат <code>2025-12-31</code>.", cancelKeyboard())
		}
		if text < state.input.DueDate {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Дата окончания не может быть раньше срока задачи.", cancelKeyboard())
		}
		state.input.RecurrenceEndDate = text
		return b.askGroupOrFinish(ctx, msg, state)
	case stageGroup:
		if text != btnPersonal && !isSkipInput(text) {
			group, ok := findGroupByName(state.groups, text)
			if !ok {
				return b.sendWithReplyMarkup(msg.Chat.ID, "Выбери группу кнопкой или «Личная».", groupKeyboard(state.groups))
			}
			state.input.GroupID = group.ID
		}
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg.Chat.ID, msg.From, state.input)
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Диалог сброшен. Попробуй ещё раз через /newtask.")
	}
}

// askGroupOrFinish asks for the group when the user has any, otherwise the
// task is personal and is created right away.
func (b *Bot) askGroupOrFinish(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	if len(state.groups) == 0 {
		b.clearConversation(msg.From.ID)
		return b.finishTaskCreation(ctx, msg.Chat.ID, msg.From, state.input)
	}
	state.stage = stageGroup
	return b.sendWithReplyMarkup(msg.Chat.ID, "👥 Для кого задача: личная или для группы?", groupKeyboard(state.groups))
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, from *tgbotapi.User, input service.TaskInput) error {
	ws, err := b.workspace(ctx, chatID, from)
	if err != nil {
		return b.replyError(chatID, "Не удалось загрузить задачи", err)
	}

	if input.IsRecurring() {
		created, err := ws.planner.CreateRecurringTask(ctx, input)
		if batchErr, ok := service.IsPartial(err); ok {
			return b.sendText(chatID, fmt.Sprintf(
				"⚠️ Создано %d из %d повторений. Не созданы: %s",
				len(created), batchErr.Total(), escape(strings.Join(batchErr.Unprocessed(), ", "))))
		}
		if err != nil {
			return b.replyError(chatID, "Не удалось сохранить задачу", err)
		}
		b.log.Info().
			Int("instances", len(created)).
			Str("kind", string(input.RecurrenceKind)).
			Msg("recurring task created")
		return b.sendText(chatID, fmt.Sprintf(
			"✅ <b>Повторяющаяся задача сохранена</b>\n• <b>Название:</b> %s\n• <b>Повтор:</b> %s до %s\n• <b>Создано:</b> %d",
			escape(input.Title), recurrenceLabel(input.RecurrenceKind), input.RecurrenceEndDate, len(created)))
	}

	task, err := ws.planner.CreateTask(ctx, input)
	if err != nil {
		return b.replyError(chatID, "Не удалось сохранить задачу", err)
	}
	b.log.Info().Str("task_id", task.ID).Msg("task created")

	var summary strings.Builder
	summary.WriteString("✅ <b>Задача сохранена</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", shortID(task.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Название:</b> %s\n", escape(task.Title)))
	if task.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Описание:</b> %s\n", escape(task.Description)))
	}
	if task.DueDate != nil {
		due := *task.DueDate
		if task.DueTime != nil {
			due += " " + *task.DueTime
		}
		summary.WriteString(fmt.Sprintf("• <b>Срок:</b> %s\n", due))
	}
	summary.WriteString(fmt.Sprintf("• <b>Приоритет:</b> %s\n", priorityLabel(task.Priority)))
	return b.sendText(chatID, strings.TrimSpace(summary.String()))
}

func findGroupByName(groups []model.Group, name string) (model.Group, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), groupButtonPrefix)
	for _, group := range groups {
		if strings.EqualFold(group.Name, name) {
			return group, true
		}
	}
	return model.Group{}, false
}
