package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"signaldesk/internal/models"
)

const signalColumns = `id, market, symbol, direction, tf, entry, sl, tps, risk_rr, leverage, risk_pct,
    indicators, comment, image_url, created_by, created_at`

func (s *Store) CreateSignal(ctx context.Context, sig *models.Signal) error {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}

	entry, err := toJSON(sig.Entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry: %w", err)
	}
	tps, err := toJSON(sig.TakeProfits)
	if err != nil {
		return fmt.Errorf("failed to encode tps: %w", err)
	}
	var indicators sql.NullString
	if len(sig.Indicators) > 0 {
		raw, err := toJSON(sig.Indicators)
		if err != nil {
			return fmt.Errorf("failed to encode indicators: %w", err)
		}
		indicators = sql.NullString{String: raw, Valid: true}
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO signals (market, symbol, direction, tf, entry, sl, tps, risk_rr, leverage, risk_pct,
            indicators, comment, image_url, created_by, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.Market, sig.Symbol, sig.Direction, sig.Timeframe, entry, sig.StopLoss, tps,
		nullFloat(sig.RiskRR), nullFloat(sig.Leverage), nullFloat(sig.RiskPct),
		indicators, sig.Comment, sig.ImageURL, sig.CreatedBy, utc(sig.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get signal id: %w", err)
	}
	sig.ID = id
	return nil
}

func (s *Store) GetSignal(ctx context.Context, id int64) (*models.Signal, error) {
	sig, err := scanSignal(s.q.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "signal", id)
	}
	return sig, nil
}

// LatestSignal самый свежий сигнал среди всех администраторов.
func (s *Store) LatestSignal(ctx context.Context) (*models.Signal, error) {
	return s.optionalSignal(ctx,
		`SELECT `+signalColumns+` FROM signals ORDER BY created_at DESC, id DESC LIMIT 1`)
}

func (s *Store) LatestSignalForSymbol(ctx context.Context, symbol string) (*models.Signal, error) {
	return s.optionalSignal(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE symbol = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		symbol)
}

func (s *Store) optionalSignal(ctx context.Context, query string, args ...any) (*models.Signal, error) {
	sig, err := scanSignal(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

func (s *Store) CountSignalsByAdminSince(ctx context.Context, adminID int64, since time.Time) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE created_by = ? AND created_at >= ?`,
		adminID, utc(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin signals: %w", err)
	}
	return n, nil
}

func (s *Store) CountSignalsBySymbolSince(ctx context.Context, symbol string, since time.Time) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE symbol = ? AND created_at >= ?`,
		symbol, utc(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count symbol signals: %w", err)
	}
	return n, nil
}

// RecentSignals последние limit сигналов по паре symbol+tf, новые первыми.
func (s *Store) RecentSignals(ctx context.Context, symbol, timeframe string, limit int) ([]*models.Signal, error) {
	return s.querySignals(ctx,
		`SELECT `+signalColumns+` FROM signals
         WHERE symbol = ? AND tf = ?
         ORDER BY created_at DESC, id DESC
         LIMIT ?`,
		symbol, timeframe, limit)
}

func (s *Store) ListSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error) {
	var (
		where []string
		args  []any
	)
	if filter.Market != "" {
		where = append(where, "market = ?")
		args = append(args, filter.Market)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, filter.Symbol)
	}
	if filter.Timeframe != "" {
		where = append(where, "tf = ?")
		args = append(args, filter.Timeframe)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultSignalsLimit
	}

	query := `SELECT ` + signalColumns + ` FROM signals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	return s.querySignals(ctx, query, args...)
}

// ListSignalsBetween сигналы за полуинтервал [from, to) по возрастанию времени.
func (s *Store) ListSignalsBetween(ctx context.Context, from, to time.Time) ([]*models.Signal, error) {
	return s.querySignals(ctx,
		`SELECT `+signalColumns+` FROM signals
         WHERE created_at >= ? AND created_at < ?
         ORDER BY created_at, id`,
		utc(from), utc(to))
}

func (s *Store) querySignals(ctx context.Context, query string, args ...any) ([]*models.Signal, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func scanSignal(row rowScanner) (*models.Signal, error) {
	var (
		sig                       models.Signal
		entry, tps, indicators    sql.NullString
		riskRR, leverage, riskPct sql.NullFloat64
	)
	err := row.Scan(&sig.ID, &sig.Market, &sig.Symbol, &sig.Direction, &sig.Timeframe,
		&entry, &sig.StopLoss, &tps, &riskRR, &leverage, &riskPct,
		&indicators, &sig.Comment, &sig.ImageURL, &sig.CreatedBy, &sig.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := fromJSON(entry, &sig.Entry); err != nil {
		return nil, corrupted("signal entry", entry.String)
	}
	if err := fromJSON(tps, &sig.TakeProfits); err != nil {
		return nil, corrupted("signal tps", tps.String)
	}
	if err := fromJSON(indicators, &sig.Indicators); err != nil {
		return nil, corrupted("signal indicators", indicators.String)
	}
	sig.RiskRR = floatPtr(riskRR)
	sig.Leverage = floatPtr(leverage)
	sig.RiskPct = floatPtr(riskPct)
	sig.CreatedAt = sig.CreatedAt.UTC()
	return &sig, nil
}
