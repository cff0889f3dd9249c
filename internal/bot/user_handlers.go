package bot

import (
	"context"
	"fmt"
	"strings"

	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

const notificationsShown = 10

func (b *Bot) showSubscription(ctx context.Context, chatID, tgID int64) {
	user, err := b.userService.GetUser(ctx, models.ByTgID(tgID))
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	var sb strings.Builder
	sb.WriteString("💳 <b>Подписка</b>\n\n")

	sub, err := b.subscriptions.CurrentSubscription(ctx, user.ID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if sub != nil {
		fmt.Fprintf(&sb, "Текущая: %s\n\n", subscriptionPeriod(sub))
	} else {
		sb.WriteString("Активной подписки нет.\n\n")
	}

	plans, err := b.subscriptions.ListPlans(ctx)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if len(plans) > 0 {
		sb.WriteString("Тарифы:\n")
		for _, p := range plans {
			if p.Trial {
				fmt.Fprintf(&sb, "• %s: пробный период\n", escape(p.Name))
				continue
			}
			fmt.Fprintf(&sb, "• %s: %s\n", escape(p.Name), p.Price.StringFixed(2))
		}
		sb.WriteString("\nДля оформления обратитесь к администратору.")
	}

	b.sendHTML(chatID, sb.String())
}

func subscriptionPeriod(sub *models.Subscription) string {
	status := "активна"
	if sub.Status == models.SubscriptionTrial {
		status = "пробный период"
	}
	if sub.EndAt == nil {
		return status + ", срок не задан"
	}
	return fmt.Sprintf("%s до %s", status, sub.EndAt.UTC().Format("02.01.2006 15:04"))
}

// showNotifications показывает последние уведомления и помечает их прочитанными.
func (b *Bot) showNotifications(ctx context.Context, chatID, tgID int64) {
	user, err := b.userService.GetUser(ctx, models.ByTgID(tgID))
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	list, err := b.notifications.List(ctx, user.ID, notificationsShown)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if len(list) == 0 {
		b.sendMessage(chatID, "🔔 Уведомлений нет.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🔔 <b>Уведомления</b>\n\n")
	for _, n := range list {
		mark := "  "
		if !n.IsRead {
			mark = "🆕"
		}
		fmt.Fprintf(&sb, "%s <b>%s</b>\n%s\n<i>%s</i>\n\n",
			mark, escape(n.Title), escape(n.Message), n.CreatedAt.UTC().Format("02.01.2006 15:04"))
	}
	b.sendHTML(chatID, sb.String())

	for _, n := range list {
		if n.IsRead {
			continue
		}
		if _, err := b.notifications.MarkRead(ctx, n.ID); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Int64("notification_id", n.ID).Msg("Failed to mark notification read")
		}
	}
}
