package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"signaldesk/internal/domain"
	"signaldesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Кнопки главного меню.
const (
	btnProfile       = "👤 Профиль"
	btnSignals       = "📈 Сигналы"
	btnWizard        = "🧭 Подбор сделки"
	btnSubscription  = "💳 Подписка"
	btnNotifications = "🔔 Уведомления"
	btnExport        = "📤 Экспорт сигналов"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	text := strings.TrimSpace(msg.Text)
	l := zerolog.Ctx(ctx)

	l.Debug().
		Int64("user_id", userID).
		Str("username", msg.From.UserName).
		Str("text", text).
		Msg("Handling message")

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg)
		case "menu":
			b.clearUserState(ctx, userID)
			b.sendMainMenu(msg.Chat.ID, userID)
		case "signals":
			b.sendSignalsPage(ctx, msg.Chat.ID, 0, userID, 0)
		case "export":
			b.handleExport(ctx, msg.Chat.ID, userID)
		default:
			b.sendMessage(msg.Chat.ID, "Неизвестная команда. Используйте меню ниже.")
			b.sendMainMenu(msg.Chat.ID, userID)
		}
		return
	}

	switch text {
	case btnProfile:
		b.showProfile(ctx, msg.Chat.ID, userID)
	case btnSignals:
		b.sendSignalsPage(ctx, msg.Chat.ID, 0, userID, 0)
	case btnWizard:
		b.startWizard(ctx, msg.Chat.ID, 0, userID)
	case btnSubscription:
		b.showSubscription(ctx, msg.Chat.ID, userID)
	case btnNotifications:
		b.showNotifications(ctx, msg.Chat.ID, userID)
	case btnExport:
		b.handleExport(ctx, msg.Chat.ID, userID)
	default:
		b.sendMainMenu(msg.Chat.ID, userID)
	}
}

// handleStart регистрирует пользователя и показывает меню.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	from := msg.From
	user, err := b.userService.RegisterUser(ctx, &models.User{
		TgID:     from.ID,
		Username: from.UserName,
		FullName: strings.TrimSpace(from.FirstName + " " + from.LastName),
		Lang:     from.LanguageCode,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", from.ID).Msg("Failed to register user")
		b.sendMessage(msg.Chat.ID, b.getErrorMessage(err))
		return
	}
	b.clearUserState(ctx, from.ID)

	name := user.FullName
	if name == "" {
		name = user.Username
	}
	b.sendMessage(msg.Chat.ID, fmt.Sprintf("Привет, %s! Здесь публикуются торговые сигналы.", name))
	b.sendMainMenu(msg.Chat.ID, from.ID)
}

func (b *Bot) sendMainMenu(chatID, userID int64) {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSignals),
			tgbotapi.NewKeyboardButton(btnWizard),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSubscription),
			tgbotapi.NewKeyboardButton(btnNotifications),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnProfile),
		),
	}
	if b.userService.IsAdmin(userID) {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnExport)))
	}

	msg := tgbotapi.NewMessage(chatID, "Выберите действие:")
	msg.ReplyMarkup = tgbotapi.NewReplyKeyboard(rows...)
	b.send(msg)
}

// showProfile прогоняет проверку доступа, чтобы роль в профиле
// соответствовала состоянию подписки.
func (b *Bot) showProfile(ctx context.Context, chatID, tgID int64) {
	user, err := b.access.EnsureUserCanViewSignals(ctx, models.ByTgID(tgID))
	if errors.Is(err, domain.ErrForbidden) {
		user, err = b.userService.GetUser(ctx, models.ByTgID(tgID))
	}
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	var sb strings.Builder
	sb.WriteString("👤 <b>Профиль</b>\n\n")
	if user.Username != "" {
		fmt.Fprintf(&sb, "Логин: @%s\n", escape(user.Username))
	}
	if user.FullName != "" {
		fmt.Fprintf(&sb, "Имя: %s\n", escape(user.FullName))
	}
	fmt.Fprintf(&sb, "Статус: %s\n", roleLabel(user.Role))

	sub, err := b.subscriptions.CurrentSubscription(ctx, user.ID)
	switch {
	case err != nil:
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", user.ID).Msg("Failed to load subscription")
	case sub != nil:
		fmt.Fprintf(&sb, "Подписка: %s\n", subscriptionPeriod(sub))
	}

	b.sendHTML(chatID, sb.String())
}

func roleLabel(r models.Role) string {
	switch r {
	case models.RoleAdmin:
		return "администратор"
	case models.RoleSubscriber:
		return "подписчик"
	case models.RoleTrial:
		return "пробный период"
	case models.RoleExpired:
		return "подписка истекла"
	case models.RoleBanned:
		return "заблокирован"
	default:
		return "гость"
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendHTML(chatID int64, text string) {
	if _, err := b.tgService.SendHTML(chatID, text); err != nil {
		b.logSendError(err)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tgService.Send(c); err != nil {
		b.logSendError(err)
	}
}

func (b *Bot) logSendError(err error) {
	if b.metrics != nil {
		b.metrics.ErrorsTotal.Inc()
	}
	b.logger.Error().Err(err).Msg("Failed to send telegram message")
}

func (b *Bot) clearUserState(ctx context.Context, userID int64) {
	if err := b.stateService.ClearUserState(ctx, userID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("Failed to clear user state")
	}
}
