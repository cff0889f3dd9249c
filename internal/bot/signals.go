package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"signaldesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	cbBackToMain   = "back_to_main"
	cbSignalsPage  = "signals_page:"
	cbSignal       = "signal:"
	cbBackSignals  = "signals_page:0"
	signalsListCap = models.MaxSignalsLimit
)

// sendSignalsPage показывает ленту сигналов, доступную только по подписке.
func (b *Bot) sendSignalsPage(ctx context.Context, chatID int64, messageID int, tgID int64, page int) {
	signals, err := b.signals.ListSignals(ctx, models.ByTgID(tgID), models.SignalFilter{Limit: signalsListCap})
	if err != nil {
		zerolog.Ctx(ctx).Info().Err(err).Int64("user_id", tgID).Msg("Signals list denied")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if len(signals) == 0 {
		b.sendMessage(chatID, "📭 Сигналов пока нет.")
		return
	}

	b.renderPaginatedList(PaginationParams{
		ChatID:       chatID,
		MessageID:    messageID,
		Page:         page,
		Title:        "📈 <b>Последние сигналы</b>",
		PagePrefix:   cbSignalsPage,
		BackCallback: cbBackToMain,
	}, len(signals), func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var sb strings.Builder
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, sig := range signals[startIdx:endIdx] {
			line := signalShort(sig)
			fmt.Fprintf(&sb, "• %s\n", line)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(line, cbSignal+strconv.FormatInt(sig.ID, 10)),
			))
		}
		return sb.String(), rows
	})
}

// showSignal открывает карточку сигнала и отмечает его просмотренным.
func (b *Bot) showSignal(ctx context.Context, chatID int64, messageID int, tgID, signalID int64) {
	user, err := b.userService.GetUser(ctx, models.ByTgID(tgID))
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	sig, err := b.signals.GetSignal(ctx, models.ByUserID(user.ID), signalID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if _, err := b.deliveries.MarkSeen(ctx, sig.ID, user.ID, nil); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("signal_id", sig.ID).Int64("user_id", user.ID).Msg("Failed to mark signal seen")
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ К списку", cbBackSignals),
			tgbotapi.NewInlineKeyboardButtonData("🏠 Меню", cbBackToMain),
		),
	)
	b.sendOrEdit(chatID, messageID, formatSignal(sig), markup)
}

func signalShort(sig *models.Signal) string {
	return fmt.Sprintf("%s %s %s @ %s-%s",
		strings.ToUpper(sig.Direction), sig.Symbol, sig.Timeframe,
		formatPrice(sig.Entry.Min), formatPrice(sig.Entry.Max))
}

// formatSignal карточка сигнала в HTML.
func formatSignal(sig *models.Signal) string {
	var sb strings.Builder
	icon := "🟢"
	if sig.Direction == models.DirectionShort {
		icon = "🔴"
	}
	fmt.Fprintf(&sb, "%s <b>%s %s</b> · %s · %s\n\n",
		icon, strings.ToUpper(sig.Direction), escape(sig.Symbol), escape(sig.Timeframe), escape(sig.Market))
	fmt.Fprintf(&sb, "Вход: %s - %s\n", formatPrice(sig.Entry.Min), formatPrice(sig.Entry.Max))
	fmt.Fprintf(&sb, "Стоп: %s\n", formatPrice(sig.StopLoss))

	tps := make([]string, len(sig.TakeProfits))
	for i, tp := range sig.TakeProfits {
		tps[i] = formatPrice(tp)
	}
	fmt.Fprintf(&sb, "Тейки: %s\n", strings.Join(tps, ", "))

	if sig.RiskRR != nil {
		fmt.Fprintf(&sb, "R:R: %s\n", formatPrice(*sig.RiskRR))
	}
	if sig.Leverage != nil {
		fmt.Fprintf(&sb, "Плечо: x%s\n", formatPrice(*sig.Leverage))
	}
	if sig.RiskPct != nil {
		fmt.Fprintf(&sb, "Риск: %s%%\n", formatPrice(*sig.RiskPct))
	}
	if sig.Comment != "" {
		fmt.Fprintf(&sb, "\n💬 %s\n", escape(sig.Comment))
	}
	fmt.Fprintf(&sb, "\n🕒 %s UTC", sig.CreatedAt.UTC().Format("02.01.2006 15:04"))
	return sb.String()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escape(s string) string {
	return html.EscapeString(s)
}
