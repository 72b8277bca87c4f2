package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"shared-planner/internal/clock"
	"shared-planner/internal/config"
	"shared-planner/internal/model"
	"shared-planner/internal/service"
	"shared-planner/internal/store"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stageDueDate
	stageDueTime
	stagePriority
	stageRecurrence
	stageRecurrenceEnd
	stageGroup
)

const (
	cbDonePrefix     = "done:"
	cbDeletePrefix   = "delete:"
	cbTogglePrefix   = "toggle:"
	cbAckPrefix      = "ack:"
	cbPageMore       = "page:more"
	cbPageLess       = "page:less"
	cbSelectionExit  = "select:exit"
	cbSelectionClear = "select:clear"
)

const (
	btnSkip            = "⏭️ Пропустить"
	btnConfirm         = "✅ Подтвердить"
	btnCancel          = "↩️ Отмена"
	btnCancelDialog    = "⏪ Отменить ввод"
	btnPriorityHigh    = "🔴 Высокий"
	btnPriorityMedium  = "🟡 Средний"
	btnPriorityLow     = "🔵 Низкий"
	btnRepeatNone      = "Не повторять"
	btnRepeatDaily     = "Каждый день"
	btnRepeatWeekly    = "Каждую неделю"
	btnRepeatMonthly   = "Каждый месяц"
	btnPersonal        = "👤 Личная"
	menuLabelNewTask   = "➕ Новая задача"
	menuLabelTasks     = "📋 Задачи"
	menuLabelCalendar  = "🗓 Календарь"
	menuLabelGroups    = "👥 Группы"
	menuLabelHelp      = "ℹ️ Помощь"
	readyTimeout       = 10 * time.Second
	reportTimeout      = 30 * time.Second
	shortIDLen         = 8
	maxButtonTitleRune = 24
)

type conversationState struct {
	stage  conversationStage
	input  service.TaskInput
	groups []model.Group
}

type confirmationAction int

const (
	actionDelete confirmationAction = iota
	actionDeleteSelected
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// telegramAPI is the part of the Bot API used to answer updates.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// workspace is the signed-in state of one Telegram user: the planner with
// its live view and the chat that receives notifications.
type workspace struct {
	chatID  int64
	planner *service.Planner
	unwatch func()
	stale   bool
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api       telegramAPI
	poller    *tgbotapi.BotAPI
	store     store.TaskStore
	services  *service.Services
	reminders *service.ReminderService
	clock     clock.Clock
	config    *config.Config
	log       zerolog.Logger

	mu            sync.Mutex
	workspaces    map[int64]*workspace
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
}

func New(token string, st store.TaskStore, services *service.Services, reminders *service.ReminderService, clk clock.Clock, cfg *config.Config, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	b := newBot(api, st, services, reminders, clk, cfg, logger)
	b.poller = api
	b.log.Info().Str("account", api.Self.UserName).Msg("bot authorized")
	return b, nil
}

func newBot(api telegramAPI, st store.TaskStore, services *service.Services, reminders *service.ReminderService, clk clock.Clock, cfg *config.Config, logger zerolog.Logger) *Bot {
	return &Bot{
		api:           api,
		store:         st,
		services:      services,
		reminders:     reminders,
		clock:         clk,
		config:        cfg,
		log:           logger.With().Str("component", "bot").Logger(),
		workspaces:    make(map[int64]*workspace),
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.poller == nil {
		return errors.New("bot has no telegram connection")
	}
	defer b.Close()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.poller.GetUpdatesChan(updateConfig)

	b.log.Info().Msg("start polling updates")

	go func() {
		<-ctx.Done()
		b.poller.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error().Err(err).Msg("failed to handle callback")
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error().Err(err).Msg("failed to handle message")
			}
		}
	}

	return nil
}

// Close stops the live views of every signed-in user.
func (b *Bot) Close() {
	b.mu.Lock()
	spaces := b.workspaces
	b.workspaces = make(map[int64]*workspace)
	b.mu.Unlock()

	for _, ws := range spaces {
		ws.unwatch()
		ws.planner.Close()
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён. Можно начать заново.")
	}

	if msg.IsCommand() {
		b.log.Debug().
			Int64("telegram_id", msg.From.ID).
			Str("command", msg.Command()).
			Str("args", msg.CommandArguments()).
			Msg("command received")
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /newtask, чтобы добавить задачу, или /help для списка команд.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "report":
		return b.handleReport(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "more":
		return b.handleWindow(ctx, msg.Chat.ID, msg.From, true)
	case "less":
		return b.handleWindow(ctx, msg.Chat.ID, msg.From, false)
	case "done":
		return b.handleDone(ctx, msg)
	case "status":
		return b.handleStatus(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "calendar":
		return b.handleCalendar(ctx, msg)
	case "day":
		return b.handleDay(ctx, msg)
	case "select":
		return b.handleSelect(ctx, msg)
	case "selectall":
		return b.handleSelectAll(ctx, msg)
	case "deleteselected":
		return b.handleDeleteSelected(ctx, msg)
	case "share":
		return b.handleShare(ctx, msg)
	case "groups":
		return b.handleGroups(ctx, msg)
	case "newgroup":
		return b.handleNewGroup(ctx, msg)
	case "join":
		return b.handleJoin(ctx, msg)
	case "leave":
		return b.handleLeave(ctx, msg)
	case "group":
		return b.handleGroupDetail(ctx, msg)
	case "name":
		return b.handleRename(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Ввод отменён.")
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.workspace(ctx, msg.Chat.ID, msg.From); err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}

	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик личных и групповых задач.</b>\n\nКоманды:\n"+
			"• /newtask — добавить задачу (можно повторяющуюся)\n"+
			"• /tasks — задачи на ближайшие дни\n"+
			"• /calendar — календарь на месяц\n"+
			"• /groups — твои группы\n"+
			"• /report — ежедневный отчёт\n"+
			"• /help — все команды\n"+
			"• /cancel — отменить текущий ввод",
		escape(name),
	)

	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /newtask — добавить задачу пошагово\n" +
		"• /tasks — задачи на ближайшие дни, /more и /less меняют окно\n" +
		"• /done &lt;id&gt; — отметить задачу выполненной\n" +
		"• /status &lt;id&gt; &lt;not_started|in_progress|done|on_hold&gt; — сменить статус\n" +
		"• /delete &lt;id&gt; — удалить задачу\n" +
		"• /calendar [ГГГГ-ММ] — календарь, /day [ГГГГ-ММ-ДД] — задачи дня\n" +
		"• /select — выбрать несколько задач, /selectall — выбрать все видимые, /deleteselected — удалить выбранные\n" +
		"• /share &lt;id&gt; &lt;группа&gt; — скопировать задачу в группу\n" +
		"• /groups, /newgroup &lt;название&gt;, /join &lt;группа&gt;, /leave &lt;группа&gt;, /group &lt;группа&gt;\n" +
		"• /name &lt;имя&gt; — сменить отображаемое имя\n" +
		"• /report — отправить ежедневный отчёт\n" +
		"• /cancel — отменить текущий ввод\n\n" +
		"Вместо полного ID можно указать первые символы, например <code>3f2a</code>."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.reminders.DailySummary(ctx, *user, b.clock.Now())
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось сформировать отчёт", err)
	}
	return b.sendText(msg.Chat.ID, text)
}

// SendDailyReports sends a summary to every user known from Telegram.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	users, err := b.services.Users.List(ctx)
	if err != nil {
		return err
	}
	now := b.clock.Now()
	for _, user := range users {
		if user.TelegramID == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		text, err := b.reminders.DailySummary(ctx, user, now)
		if err != nil {
			b.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to build summary")
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.log.Error().Err(err).Int64("telegram_id", *user.TelegramID).Msg("failed to send summary")
		}
	}
	return nil
}

// ReportJob adapts SendDailyReports to the scheduler.
func (b *Bot) ReportJob() {
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	if err := b.SendDailyReports(ctx); err != nil && !errors.Is(err, context.Canceled) {
		b.log.Error().Err(err).Msg("daily report failed")
	}
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.services.Users.EnsureTelegramUser(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

// workspace returns the planner of a Telegram user, signing in and loading
// the live view on first use.
func (b *Bot) workspace(ctx context.Context, chatID int64, from *tgbotapi.User) (*workspace, error) {
	b.mu.Lock()
	ws, ok := b.workspaces[from.ID]
	if ok {
		ws.chatID = chatID
	}
	b.mu.Unlock()
	if ok {
		return ws, nil
	}

	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil, err
	}
	p, err := service.NewPlanner(service.NewSession(*user), b.store, b.services, b.clock, b.config.DisplayWindowDays, b.log)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		p.Close()
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := p.WaitReady(waitCtx); err != nil {
		p.Close()
		return nil, err
	}

	ws = &workspace{chatID: chatID, planner: p}
	ws.unwatch = p.Watch(func(view service.View) {
		b.onView(ws, view)
	})

	b.mu.Lock()
	if existing, ok := b.workspaces[from.ID]; ok {
		b.mu.Unlock()
		ws.unwatch()
		p.Close()
		return existing, nil
	}
	b.workspaces[from.ID] = ws
	b.mu.Unlock()
	b.log.Info().
		Str("user_id", user.ID).
		Int64("telegram_id", from.ID).
		Msg("workspace opened")
	return ws, nil
}

// onView tells the chat when the live view loses or regains the store.
func (b *Bot) onView(ws *workspace, view service.View) {
	b.mu.Lock()
	wasStale := ws.stale
	ws.stale = view.Stale
	chatID := ws.chatID
	b.mu.Unlock()

	var text string
	switch {
	case view.Stale && !wasStale:
		text = "⚠️ Нет связи с хранилищем. Показываю последние загруженные задачи."
	case !view.Stale && wasStale:
		text = "✅ Связь с хранилищем восстановлена."
	default:
		return
	}
	if err := b.sendText(chatID, text); err != nil {
		b.log.Error().Err(err).Msg("failed to send view status")
	}
}

// describeError maps service errors to a user-facing phrase.
func describeError(err error) string {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return fmt.Sprintf("неверное значение «%s»: %s", validation.Field, validation.Reason)
	case errors.Is(err, service.ErrTaskNotFound):
		return "задача не найдена"
	case errors.Is(err, service.ErrGroupNotFound):
		return "группа не найдена"
	case errors.Is(err, service.ErrUserNotFound):
		return "пользователь не найден"
	case errors.Is(err, service.ErrPermissionDenied):
		return "недостаточно прав"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "хранилище недоступно, попробуй позже"
	default:
		return err.Error()
	}
}

func (b *Bot) replyError(chatID int64, prefix string, err error) error {
	b.log.Warn().Err(err).Int64("chat_id", chatID).Msg(prefix)
	return b.sendText(chatID, fmt.Sprintf("%s: %s", prefix, escape(describeError(err))))
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func escape(s string) string {
	return html.EscapeString(s)
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
