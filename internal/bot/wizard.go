package bot

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"signaldesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	cbWizMarket = "wiz_market:"
	cbWizPair   = "wiz_pair:"
	cbWizTF     = "wiz_tf:"
	cbWizRisk   = "wiz_risk:"
)

// riskOptions риск на сделку, % депозита.
var riskOptions = []string{"0.5", "1", "2", "3"}

// wizardStep описывает один шаг: текущий шаг сессии, ключ данных и следующий шаг.
type wizardStep struct {
	state string
	key   string
	next  string
}

var wizardSteps = map[string]wizardStep{
	cbWizMarket: {state: StateWizardMarket, key: "market", next: StateWizardPair},
	cbWizPair:   {state: StateWizardPair, key: "pair", next: StateWizardTF},
	cbWizTF:     {state: StateWizardTF, key: "tf", next: StateWizardRisk},
	cbWizRisk:   {state: StateWizardRisk, key: "risk"},
}

func (b *Bot) startWizard(ctx context.Context, chatID int64, messageID int, tgID int64) {
	if err := b.stateService.SetUserState(ctx, tgID, StateWizardMarket, nil); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", tgID).Msg("Failed to start wizard")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.askStep(chatID, messageID, StateWizardMarket, nil)
}

// handleWizardCallback обрабатывает выбор на шаге мастера.
func (b *Bot) handleWizardCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, prefix string) {
	chatID, messageID := cb.Message.Chat.ID, cb.Message.MessageID
	tgID := cb.From.ID
	step := wizardSteps[prefix]
	value := strings.TrimPrefix(cb.Data, prefix)

	state, err := b.stateService.GetUserState(ctx, tgID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if state == nil || state.CurrentStep != step.state {
		b.sendMessage(chatID, "⌛ Сессия подбора устарела, начнем заново.")
		b.startWizard(ctx, chatID, 0, tgID)
		return
	}
	if !slices.Contains(b.stepOptions(step.state), value) {
		b.askStep(chatID, messageID, step.state, state.TempData)
		return
	}

	data := state.TempData
	if data == nil {
		data = make(map[string]interface{})
	}
	data[step.key] = value

	if step.next == "" {
		b.finishWizard(ctx, chatID, messageID, tgID, data)
		return
	}
	if err := b.stateService.SetUserState(ctx, tgID, step.next, data); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", tgID).Msg("Failed to save wizard step")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.askStep(chatID, messageID, step.next, data)
}

func (b *Bot) stepOptions(state string) []string {
	switch state {
	case StateWizardMarket:
		return b.config.Bot.Markets
	case StateWizardPair:
		return b.config.Bot.Pairs
	case StateWizardTF:
		return b.config.Bot.Timeframes
	case StateWizardRisk:
		return riskOptions
	}
	return nil
}

func (b *Bot) askStep(chatID int64, messageID int, state string, data map[string]interface{}) {
	var (
		title  string
		prefix string
		label  = func(v string) string { return v }
	)
	switch state {
	case StateWizardMarket:
		title, prefix = "Шаг 1/4. Выберите рынок:", cbWizMarket
	case StateWizardPair:
		title, prefix = "Шаг 2/4. Выберите пару:", cbWizPair
	case StateWizardTF:
		title, prefix = "Шаг 3/4. Выберите таймфрейм:", cbWizTF
	case StateWizardRisk:
		title, prefix = "Шаг 4/4. Риск на сделку:", cbWizRisk
		label = func(v string) string { return v + "%" }
	default:
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, opt := range b.stepOptions(state) {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label(opt), prefix+opt))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад в меню", cbBackToMain),
	))

	text := "🧭 <b>Подбор сделки</b>\n"
	if picked := wizardSummary(data); picked != "" {
		text += picked + "\n"
	}
	text += "\n" + title
	b.sendOrEdit(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func wizardSummary(data map[string]interface{}) string {
	var parts []string
	for _, key := range []string{"market", "pair", "tf"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " · ")
}

// finishWizard ищет последний подходящий сигнал и очищает сессию.
func (b *Bot) finishWizard(ctx context.Context, chatID int64, messageID int, tgID int64, data map[string]interface{}) {
	defer b.clearUserState(ctx, tgID)

	sess := &models.UserState{UserID: tgID, TempData: data}
	filter := models.SignalFilter{
		Market:    sess.GetString("market"),
		Symbol:    sess.GetString("pair"),
		Timeframe: sess.GetString("tf"),
		Limit:     1,
	}
	signals, err := b.signals.ListSignals(ctx, models.ByTgID(tgID), filter)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	back := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔁 Заново", cbWizardRestart),
		tgbotapi.NewInlineKeyboardButtonData("🏠 Меню", cbBackToMain),
	))
	if len(signals) == 0 {
		b.sendOrEdit(chatID, messageID,
			fmt.Sprintf("🧭 %s\n\nПодходящих сигналов пока нет.", wizardSummary(data)), back)
		return
	}

	risk, _ := strconv.ParseFloat(sess.GetString("risk"), 64)
	text := formatSignal(signals[0]) + "\n\n" + positionHint(signals[0], risk)
	b.sendOrEdit(chatID, messageID, text, back)
}

const cbWizardRestart = "wizard_restart"

// positionHint размер позиции в % депозита при заданном риске.
func positionHint(sig *models.Signal, riskPct float64) string {
	entry := (sig.Entry.Min + sig.Entry.Max) / 2
	if entry <= 0 || riskPct <= 0 {
		return ""
	}
	stopPct := math.Abs(entry-sig.StopLoss) / entry * 100
	if stopPct == 0 {
		return ""
	}
	size := riskPct / stopPct * 100
	return fmt.Sprintf("📐 Риск %s%%, стоп %.2f%% от входа: позиция ≈ %.1f%% депозита.",
		formatPrice(riskPct), stopPct, size)
}
