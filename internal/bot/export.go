package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"signaldesk/internal/export"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
)

const exportDays = 30

// handleExport отправляет администратору xlsx с сигналами за 30 дней.
// Копия файла остается в exports.path.
func (b *Bot) handleExport(ctx context.Context, chatID, tgID int64) {
	l := zerolog.Ctx(ctx)
	to := b.now().UTC()
	from := to.AddDate(0, 0, -exportDays)

	signals, err := b.signals.SignalsForExport(ctx, models.ByTgID(tgID), from, to)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	data, err := export.SignalsReport(signals, from, to)
	if err != nil {
		l.Error().Err(err).Msg("Failed to build signals report")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	name := export.FileName(from, to)
	if path, err := b.saveExport(name, data); err != nil {
		l.Warn().Err(err).Msg("Failed to save export copy")
	} else {
		l.Info().Str("path", path).Int("signals", len(signals)).Msg("Signals export saved")
	}

	if _, err := b.tgService.SendDocument(chatID, name, data); err != nil {
		b.logSendError(err)
		return
	}
	if b.metrics != nil {
		b.metrics.ExportsTotal.Inc()
	}
	b.sendMessage(chatID, fmt.Sprintf("📤 Выгрузка готова: %d сигналов.", len(signals)))
}

func (b *Bot) saveExport(name string, data []byte) (string, error) {
	dir := b.config.Exports.Path
	if dir == "" {
		dir = "exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
