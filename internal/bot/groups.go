package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleGroups(ctx context.Context, msg *tgbotapi.Message) error {
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	groups, err := b.services.Groups.List(ctx, ws.planner.Session())
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось получить группы", err)
	}
	if len(groups) == 0 {
		return b.sendText(msg.Chat.ID, "Ты пока не состоишь в группах. Создай группу: /newgroup &lt;название&gt;")
	}
	var builder strings.Builder
	builder.WriteString("👥 <b>Группы</b>\n")
	for _, group := range groups {
		builder.WriteString(fmt.Sprintf("• %s · %d уч.\n", escape(group.Name), len(group.Members)))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleNewGroup(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return b.sendText(msg.Chat.ID, "Укажи название: /newgroup Учёба")
	}
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	group, err := b.services.Groups.Create(ctx, ws.planner.Session(), name)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось создать группу", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Группа «%s» создана. Друзья могут вступить командой /join %s", escape(group.Name), escape(group.Name)))
}

func (b *Bot) handleJoin(ctx context.Context, msg *tgbotapi.Message) error {
	return b.changeMembership(ctx, msg, true)
}

func (b *Bot) handleLeave(ctx context.Context, msg *tgbotapi.Message) error {
	return b.changeMembership(ctx, msg, false)
}

func (b *Bot) changeMembership(ctx context.Context, msg *tgbotapi.Message, join bool) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи название группы.")
	}
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	group, err := b.services.Groups.Lookup(ctx, ref)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось найти группу", err)
	}
	if join {
		if err := b.services.Groups.Join(ctx, ws.planner.Session(), group.ID); err != nil {
			return b.replyError(msg.Chat.ID, "Не удалось вступить в группу", err)
		}
		return b.sendText(msg.Chat.ID, fmt.Sprintf("👋 Ты в группе «%s». Её задачи появятся в /tasks.", escape(group.Name)))
	}
	if err := b.services.Groups.Leave(ctx, ws.planner.Session(), group.ID); err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось выйти из группы", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🚪 Ты вышел из группы «%s».", escape(group.Name)))
}

func (b *Bot) handleGroupDetail(ctx context.Context, msg *tgbotapi.Message) error {
	ref := strings.TrimSpace(msg.CommandArguments())
	if ref == "" {
		return b.sendText(msg.Chat.ID, "Укажи название группы: /group Учёба")
	}
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	group, err := b.services.Groups.Lookup(ctx, ref)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось найти группу", err)
	}
	detail, err := b.services.Groups.Detail(ctx, ws.planner.Session(), group.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось открыть группу", err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("👥 <b>%s</b>\n", escape(detail.Group.Name)))
	for _, member := range detail.Members {
		role := ""
		if member.IsOwner {
			role = " 👑"
		}
		builder.WriteString(fmt.Sprintf("• %s%s\n", escape(member.DisplayName), role))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleRename(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return b.sendText(msg.Chat.ID, "Укажи новое имя: /name Аня")
	}
	ws, err := b.workspace(ctx, msg.Chat.ID, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось загрузить задачи", err)
	}
	if err := b.services.Users.Rename(ctx, ws.planner.Session(), name); err != nil {
		return b.replyError(msg.Chat.ID, "Не удалось сменить имя", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Теперь тебя зовут %s.", escape(name)))
}
