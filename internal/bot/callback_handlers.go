package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	userID := cb.From.ID

	// Отвечаем на callback сразу, чтобы убрать "часики"
	if err := b.tgService.AnswerCallback(cb.ID, ""); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to answer callback")
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID

	switch {
	case data == cbBackToMain:
		b.clearUserState(ctx, userID)
		b.sendMainMenu(chatID, userID)

	case data == cbWizardRestart:
		b.startWizard(ctx, chatID, messageID, userID)

	case strings.HasPrefix(data, cbSignalsPage):
		page, _ := strconv.Atoi(strings.TrimPrefix(data, cbSignalsPage))
		b.sendSignalsPage(ctx, chatID, messageID, userID, page)

	case strings.HasPrefix(data, cbSignal):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, cbSignal), 10, 64)
		if err != nil {
			return
		}
		b.showSignal(ctx, chatID, messageID, userID, id)

	default:
		for prefix := range wizardSteps {
			if strings.HasPrefix(data, prefix) {
				b.handleWizardCallback(ctx, cb, prefix)
				return
			}
		}
		zerolog.Ctx(ctx).Debug().Str("data", data).Msg("Unknown callback")
	}
}
