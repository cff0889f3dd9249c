package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signaldesk/internal/models"
)

func (s *Store) FindDelivery(ctx context.Context, signalID, userID int64) (*models.SignalDelivery, error) {
	d, err := scanDelivery(s.q.QueryRowContext(ctx,
		`SELECT id, signal_id, user_id, delivered_at, seen_at FROM signal_deliveries
         WHERE signal_id = ? AND user_id = ?`, signalID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery: %w", err)
	}
	return d, nil
}

// MarkDelivered создает запись доставки; уже выставленное delivered_at не меняется.
func (s *Store) MarkDelivered(ctx context.Context, signalID, userID int64, at time.Time) (*models.SignalDelivery, error) {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO signal_deliveries (signal_id, user_id, delivered_at) VALUES (?, ?, ?)
         ON CONFLICT(signal_id, user_id) DO UPDATE SET
           delivered_at = COALESCE(delivered_at, excluded.delivered_at)`,
		signalID, userID, utc(at))
	if err != nil {
		return nil, fmt.Errorf("failed to mark delivered: %w", err)
	}
	return s.mustFindDelivery(ctx, signalID, userID)
}

// MarkSeen выставляет seen_at, если он ещё пуст. Запись создается при необходимости.
func (s *Store) MarkSeen(ctx context.Context, signalID, userID int64, at time.Time) (*models.SignalDelivery, error) {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO signal_deliveries (signal_id, user_id, seen_at) VALUES (?, ?, ?)
         ON CONFLICT(signal_id, user_id) DO UPDATE SET
           seen_at = COALESCE(seen_at, excluded.seen_at)`,
		signalID, userID, utc(at))
	if err != nil {
		return nil, fmt.Errorf("failed to mark seen: %w", err)
	}
	return s.mustFindDelivery(ctx, signalID, userID)
}

func (s *Store) mustFindDelivery(ctx context.Context, signalID, userID int64) (*models.SignalDelivery, error) {
	d, err := s.FindDelivery(ctx, signalID, userID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, notFound(errNoRows, "delivery for signal", signalID)
	}
	return d, nil
}

// ListDeliveries лента пользователя: доставленные первыми, затем по id.
func (s *Store) ListDeliveries(ctx context.Context, userID int64, limit int) ([]*models.SignalDelivery, error) {
	if limit <= 0 {
		limit = models.DefaultSignalsLimit
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT d.id, d.signal_id, d.user_id, d.delivered_at, d.seen_at,
                s.id, s.market, s.symbol, s.direction, s.tf, s.entry, s.sl, s.tps,
                s.risk_rr, s.leverage, s.risk_pct, s.indicators, s.comment, s.image_url,
                s.created_by, s.created_at
         FROM signal_deliveries d
         JOIN signals s ON s.id = d.signal_id
         WHERE d.user_id = ?
         ORDER BY d.delivered_at DESC NULLS LAST, d.id DESC
         LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*models.SignalDelivery
	for rows.Next() {
		var (
			d               models.SignalDelivery
			delivered, seen sql.NullTime
		)
		sig, err := scanSignal(prefixScanner{row: rows, prefix: []any{&d.ID, &d.SignalID, &d.UserID, &delivered, &seen}})
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.DeliveredAt = timePtr(delivered)
		d.SeenAt = timePtr(seen)
		d.Signal = sig
		out = append(out, &d)
	}
	return out, rows.Err()
}

// prefixScanner дочитывает ведущие колонки JOIN перед колонками сигнала.
type prefixScanner struct {
	row    rowScanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

func scanDelivery(row rowScanner) (*models.SignalDelivery, error) {
	var (
		d               models.SignalDelivery
		delivered, seen sql.NullTime
	)
	if err := row.Scan(&d.ID, &d.SignalID, &d.UserID, &delivered, &seen); err != nil {
		return nil, err
	}
	d.DeliveredAt = timePtr(delivered)
	d.SeenAt = timePtr(seen)
	return &d, nil
}
