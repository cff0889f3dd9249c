package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allowUpdate применяет лимит сообщений на пользователя. Админы не ограничены.
// Ошибка хранилища лимитов не блокирует пользователя.
func (b *Bot) allowUpdate(ctx context.Context, userID int64) bool {
	if b.userService.IsAdmin(userID) || b.stateService == nil {
		return true
	}

	limit := b.config.Bot.RateLimitMessages
	window := time.Duration(b.config.Bot.RateLimitWindow) * time.Second
	if limit <= 0 || window <= 0 {
		return true
	}

	allowed, err := b.stateService.CheckRateLimit(ctx, userID, limit, window)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		zerolog.Ctx(ctx).Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
		if b.metrics != nil {
			b.metrics.RateLimited.Inc()
		}
	}
	return allowed
}
