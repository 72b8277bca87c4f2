package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shared-planner/internal/model"
	"shared-planner/internal/service"
)

func (b *Bot) handleSelect(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	if pending := ws.planner.Selection().Pending(); pending != nil {
		return b.sendPending(msg.Chat.ID, pending)
	}
	ws.planner.Selection().Enter()
	return b.sendSelection(msg.Chat.ID, ws)
}

func (b *Bot) handleSelectAll(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	ws.planner.Selection().Enter()
	if err := ws.planner.SelectAllVisible(""); err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось выбрать задачи", err)
	}
	return b.sendSelection(msg.Chat.ID, ws)
}

func (b *Bot) handleDeleteSelected(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	selection := ws.planner.Selection()
	if selection.Mode() != service.ModeSelecting {
		return b.sendText(msg.Chat.ID, "Сначала выбери задачи: /select")
	}
	if pending := selection.Pending(); pending != nil {
		return b.sendPending(msg.Chat.ID, pending)
	}
	ids := selection.Selected()
	if len(ids) == 0 {
		return b.sendText(msg.Chat.ID, "Ничего не выбрано.")
	}
	b.setConfirmation(msg.From.ID, confirmationRequest{action: actionDeleteSelected})
	return b.sendWithReplyMarkup(msg.Chat.ID, fmt.Sprintf("Удалить выбранные задачи (%d)?", len(ids)), confirmKeyboard())
}

func (b *Bot) deleteSelected(ctx context.Context, chatID int64, ws *workspace) error {
	deleted, err := ws.planner.DeleteSelected(ctx)
	if batchErr, ok := service.IsPartial(err); ok {
		b.log.Warn().
			Int("deleted", len(deleted)).
			Str("failed", batchErr.Failed).
			Err(batchErr.Err).
			Msg("batch delete stopped")
		return b.sendPending(chatID, batchErr)
	}
	if err != nil {
		return b.replyError(chatID, "Не удалось удалить задачи", err)
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 Удалено задач: %d.", len(deleted)))
}

// sendPending reports a batch that stopped partway. The unprocessed tasks
// stay selected until the user acknowledges.
func (b *Bot) sendPending(chatID int64, batchErr *service.PartialBatchError) error {
	unprocessed := make([]string, 0, len(batchErr.Unprocessed()))
	for _, id := range batchErr.Unprocessed() {
		unprocessed = append(unprocessed, "<code>"+shortID(id)+"</code>")
	}
	text := fmt.Sprintf(
		"⚠️ Удалено %d из %d. Не обработаны: %s\nПричина: %s",
		len(batchErr.Succeeded), batchErr.Total(), strings.Join(unprocessed, ", "), escape(describeError(batchErr.Err)))
	return b.sendWithReplyMarkup(chatID, text, ackKeyboard())
}

func (b *Bot) sendSelection(chatID int64, ws *workspace) error {
	list := ws.planner.ListView("", 0)
	if len(list.Tasks) == 0 {
		return b.sendText(chatID, "Нет задач для выбора.")
	}
	text := fmt.Sprintf("☑️ <b>Режим выбора</b>\nВыбрано: %d. Нажимай на задачи, затем /deleteselected.", len(ws.planner.Selection().Selected()))
	return b.sendWithReplyMarkup(chatID, text, selectionKeyboard(list.Tasks, ws.planner.Selection()))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("failed to ack callback")
	}

	chatID := cb.Message.Chat.ID
	ws, err := b.workspace(ctx, chatID, cb.From)
	if err != nil {
		return b.replyError(chatID, "Не удалось загрузить задачи", err)
	}

	data := cb.Data
	b.log.Debug().Int64("telegram_id", cb.From.ID).Str("data", data).Msg("callback received")
	switch {
	case strings.HasPrefix(data, cbDonePrefix):
		return b.applyStatus(ctx, chatID, ws, strings.TrimPrefix(data, cbDonePrefix), model.StatusDone)
	case strings.HasPrefix(data, cbDeletePrefix):
		return b.askDeleteConfirmation(chatID, cb.From.ID, ws, strings.TrimPrefix(data, cbDeletePrefix))
	case strings.HasPrefix(data, cbTogglePrefix):
		if _, err := ws.planner.Selection().Toggle(strings.TrimPrefix(data, cbTogglePrefix)); err != nil {
			if errors.Is(err, service.ErrNotSelecting) {
				return b.sendText(chatID, "Режим выбора уже закрыт. Начни заново: /select")
			}
			return err
		}
		return b.editSelection(cb, ws)
	case data == cbSelectionClear:
		if err := ws.planner.Selection().Clear(); err != nil {
			if errors.Is(err, service.ErrNotSelecting) {
				return b.sendText(chatID, "Режим выбора уже закрыт. Начни заново: /select")
			}
			return err
		}
		return b.editSelection(cb, ws)
	case data == cbSelectionExit:
		ws.planner.Selection().Exit()
		return b.sendText(chatID, "Режим выбора закрыт.")
	case strings.HasPrefix(data, cbAckPrefix):
		ws.planner.Selection().Acknowledge()
		return b.sendText(chatID, "Хорошо. Режим выбора закрыт.")
	case data == cbPageMore:
		return b.handleWindow(ctx, chatID, cb.From, true)
	case data == cbPageLess:
		return b.handleWindow(ctx, chatID, cb.From, false)
	default:
		return nil
	}
}

// editSelection redraws the selection keyboard in place.
func (b *Bot) editSelection(cb *tgbotapi.CallbackQuery, ws *workspace) error {
	list := ws.planner.ListView("", 0)
	selected := len(ws.planner.Selection().Selected())
	text := fmt.Sprintf("☑️ <b>Режим выбора</b>\nВыбрано: %d. Нажимай на задачи, затем /deleteselected.", selected)
	edit := tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID, text, selectionKeyboard(list.Tasks, ws.planner.Selection()))
	edit.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(edit)
	return err
}
