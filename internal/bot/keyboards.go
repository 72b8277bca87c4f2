package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

const groupButtonPrefix = "👥 "

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuLabelCalendar):
		return true, b.handleCalendar(ctx, msg)
	case strings.ToLower(menuLabelGroups):
		return true, b.handleGroups(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func confirmKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnConfirm),
			tgbotapi.NewKeyboardButton(btnCancel),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelCalendar),
			tgbotapi.NewKeyboardButton(menuLabelGroups),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func priorityKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnPriorityHigh),
			tgbotapi.NewKeyboardButton(btnPriorityMedium),
			tgbotapi.NewKeyboardButton(btnPriorityLow),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func recurrenceKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRepeatNone),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnRepeatDaily),
			tgbotapi.NewKeyboardButton(btnRepeatWeekly),
			tgbotapi.NewKeyboardButton(btnRepeatMonthly),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func groupKeyboard(groups []model.Group) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnPersonal)),
	}
	for _, group := range groups {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(groupButtonPrefix+group.Name)))
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancelDialog)))
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// taskListKeyboard has one row per task: complete and delete.
func taskListKeyboard(tasks []model.Task, expanded bool, hidden int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		var row []tgbotapi.InlineKeyboardButton
		if task.Status != model.StatusDone {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(task.Title, maxButtonTitleRune), cbDonePrefix+task.ID))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID))
		rows = append(rows, row)
	}
	var paging []tgbotapi.InlineKeyboardButton
	if hidden > 0 {
		paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("⏩ Показать больше", cbPageMore))
	}
	if expanded {
		paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("⏪ Свернуть", cbPageLess))
	}
	if len(paging) > 0 {
		rows = append(rows, paging)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// selectionKeyboard toggles tasks in and out of the selection.
func selectionKeyboard(tasks []model.Task, selection *service.Selection) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		mark := "☐ "
		if selection.IsSelected(task.ID) {
			mark = "☑️ "
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+shortTitle(task.Title, maxButtonTitleRune), cbTogglePrefix+task.ID),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🧹 Снять выбор", cbSelectionClear),
		tgbotapi.NewInlineKeyboardButtonData("↩️ Выйти из выбора", cbSelectionExit),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func ackKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("👌 Понятно", cbAckPrefix),
	))
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

func isConfirmInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnConfirm) || value == "подтвердить" || value == "да"
}

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "отменить ввод"
}

// parsePriorityInput accepts a priority button. Skipping picks medium.
func parsePriorityInput(text string) (model.Priority, bool) {
	switch {
	case text == btnPriorityHigh:
		return model.PriorityHigh, true
	case text == btnPriorityMedium, isSkipInput(text):
		return model.PriorityMedium, true
	case text == btnPriorityLow:
		return model.PriorityLow, true
	}
	if p, err := model.ParsePriority(text); err == nil {
		return p, true
	}
	return "", false
}

// parseRecurrenceInput returns an empty kind for "no repeat".
func parseRecurrenceInput(text string) (model.RecurrenceKind, bool) {
	switch text {
	case btnRepeatNone:
		return "", true
	case btnRepeatDaily:
		return model.RecurDaily, true
	case btnRepeatWeekly:
		return model.RecurWeekly, true
	case btnRepeatMonthly:
		return model.RecurMonthly, true
	}
	if isSkipInput(text) {
		return "", true
	}
	return "", false
}

func recurrenceLabel(kind model.RecurrenceKind) string {
	switch kind {
	case model.RecurDaily:
		return "каждый день"
	case model.RecurWeekly:
		return "каждую неделю"
	case model.RecurMonthly:
		return "каждый месяц"
	}
	return string(kind)
}

func priorityLabel(p model.Priority) string {
	switch p {
	case model.PriorityHigh:
		return btnPriorityHigh
	case model.PriorityLow:
		return btnPriorityLow
	default:
		return btnPriorityMedium
	}
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusInProgress:
		return "в работе"
	case model.StatusDone:
		return "выполнена"
	case model.StatusOnHold:
		return "отложена"
	default:
		return "не начата"
	}
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}
