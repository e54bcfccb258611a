package repo

import (
	"context"
	"database/sql"
)

// BudgetRepo persists per-owner budget settings, an append-only spend
// ledger keyed by calendar month, and one-shot alert markers.
type BudgetRepo struct {
	db *sql.DB
}

func NewBudgetRepo(db *sql.DB) *BudgetRepo {
	return &BudgetRepo{db: db}
}

func (r *BudgetRepo) GetMonthlyBudget(ctx context.Context, ownerID string) (float64, bool, error) {
	const query = `SELECT monthly_budget_usd FROM budget_settings WHERE owner_id = $1`
	row := r.db.QueryRowContext(ctx, query, ownerID)
	var budget float64
	if err := row.Scan(&budget); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return budget, true, nil
}

func (r *BudgetRepo) SetMonthlyBudget(ctx context.Context, ownerID string, budgetUSD float64, mtime int64) error {
	const query = `
		INSERT INTO budget_settings (owner_id, monthly_budget_usd, mtime)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE SET
			monthly_budget_usd = EXCLUDED.monthly_budget_usd,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, ownerID, budgetUSD, mtime)
	return err
}

func (r *BudgetRepo) AddSpend(ctx context.Context, ownerID, month, kind string, costUSD float64, ctime int64) error {
	const query = `
		INSERT INTO budget_spend (owner_id, month, kind, cost_usd, ctime)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query, ownerID, month, kind, costUSD, ctime)
	return err
}

func (r *BudgetRepo) MonthSpend(ctx context.Context, ownerID, month string) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(cost_usd), 0)
		FROM budget_spend
		WHERE owner_id = $1 AND month = $2
	`
	row := r.db.QueryRowContext(ctx, query, ownerID, month)
	var spend float64
	if err := row.Scan(&spend); err != nil {
		return 0, err
	}
	return spend, nil
}

// TryMarkAlert records that a threshold fired for owner+month. Returns true
// only for the caller that inserted the row, so each threshold alerts at
// most once per calendar month even under concurrent checks.
func (r *BudgetRepo) TryMarkAlert(ctx context.Context, ownerID, month string, thresholdPct int, ctime int64) (bool, error) {
	const query = `
		INSERT INTO budget_alerts (owner_id, month, threshold_pct, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, month, threshold_pct) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, ownerID, month, thresholdPct, ctime)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
