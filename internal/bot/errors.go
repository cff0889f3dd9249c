package bot

import (
	"errors"
	"fmt"

	"signaldesk/internal/domain"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var forbidden *domain.ForbiddenError
	if errors.As(err, &forbidden) {
		switch forbidden.Reason {
		case domain.ReasonBanned:
			return "⛔ Доступ к боту заблокирован."
		case domain.ReasonNoSubscription:
			return "🔒 Сигналы доступны только по подписке. Откройте раздел «💳 Подписка»."
		case domain.ReasonExpired:
			return "⌛ Срок вашей подписки истек. Продлите ее в разделе «💳 Подписка»."
		case domain.ReasonNotAdmin:
			return "⛔ Команда доступна только администраторам."
		}
	}

	var limited *domain.RateLimitedError
	if errors.As(err, &limited) {
		return fmt.Sprintf("⏳ Слишком часто. Повторите через %d сек.", limited.RetryAfterSeconds())
	}

	if errors.Is(err, domain.ErrNotFound) {
		return "🔍 Ничего не найдено. Возможно, запись была удалена."
	}

	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidPayload) {
		return "⚠️ Некорректный запрос. Проверьте данные и попробуйте еще раз."
	}

	// Default error message
	return "❌ Произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже."
}
