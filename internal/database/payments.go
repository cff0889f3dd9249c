package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"signaldesk/internal/models"
)

// FindPayment ищет платеж по ключу идемпотентности провайдера.
func (s *Store) FindPayment(ctx context.Context, provider, txID string) (*models.Payment, error) {
	var p models.Payment
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, amount_cents, currency, provider, tx_id, status, created_at, updated_at
         FROM payments WHERE provider = ? AND tx_id = ?`, provider, txID).Scan(
		&p.ID, &p.UserID, &p.AmountCents, &p.Currency, &p.Provider, &p.TxID, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}

	res, err := s.q.ExecContext(ctx,
		`INSERT INTO payments (user_id, amount_cents, currency, provider, tx_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.AmountCents, p.Currency, p.Provider, p.TxID, p.Status,
		utc(p.CreatedAt), utc(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get payment id: %w", err)
	}
	p.ID = id
	return nil
}

// UpdatePayment обновляет статус и сумму повторно пришедшего платежа.
func (s *Store) UpdatePayment(ctx context.Context, p *models.Payment) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE payments SET status = ?, amount_cents = ?, currency = ?, updated_at = ? WHERE id = ?`,
		p.Status, p.AmountCents, p.Currency, utc(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(errNoRows, "payment", p.ID)
	}
	return nil
}
