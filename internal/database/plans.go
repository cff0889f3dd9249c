package database

import (
	"context"
	"fmt"

	"signaldesk/internal/models"
)

// UpsertPlan синхронизирует тариф из конфигурации по коду.
func (s *Store) UpsertPlan(ctx context.Context, plan *models.Plan) error {
	query := `INSERT INTO plans (code, name, months, price, trial)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(code) DO UPDATE SET
                name = excluded.name,
                months = excluded.months,
                price = excluded.price,
                trial = excluded.trial
              RETURNING id`
	err := s.q.QueryRowContext(ctx, query,
		plan.Code, plan.Name, plan.Months, plan.Price.String(), plan.Trial,
	).Scan(&plan.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", plan.Code, err)
	}
	return nil
}

func (s *Store) GetPlanByCode(ctx context.Context, code string) (*models.Plan, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, code, name, months, price, trial FROM plans WHERE code = ?`, code)
	p, err := scanPlan(row)
	if err != nil {
		return nil, notFound(err, "plan", code)
	}
	return p, nil
}

func (s *Store) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, code, name, months, price, trial FROM plans ORDER BY months, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	// decimal.Decimal реализует sql.Scanner
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Months, &p.Price, &p.Trial); err != nil {
		return nil, err
	}
	return &p, nil
}
