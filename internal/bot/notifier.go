package bot

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"signaldesk/internal/models"
	"signaldesk/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NotifySignal отправляет опубликованный сигнал пользователю в личный чат.
// Ошибки, которые не исправятся повтором (бот заблокирован, чат удален),
// помечаются worker.Permanent.
func (b *Bot) NotifySignal(ctx context.Context, user *models.User, sig *models.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔎 Подробнее", cbSignal+strconv.FormatInt(sig.ID, 10)),
	))
	text := "🔔 <b>Новый сигнал</b>\n\n" + formatSignal(sig)

	_, err := b.tgService.SendWithInlineKeyboard(user.TgID, text, markup)
	if err != nil {
		b.countPush("error")
		return classifySendError(err)
	}
	b.countPush("sent")
	return nil
}

func (b *Bot) countPush(result string) {
	if b.metrics != nil {
		b.metrics.SignalsPushed.WithLabelValues(result).Inc()
	}
}

func classifySendError(err error) error {
	var code int
	var apiErr *tgbotapi.Error
	var apiErrVal tgbotapi.Error
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrVal):
		code = apiErrVal.Code
	default:
		return err
	}
	switch code {
	case http.StatusForbidden, http.StatusBadRequest:
		return worker.Permanent(err)
	}
	return err
}
