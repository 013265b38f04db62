package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/recurpay/internal/revenue"
)

const totalsQuery = `
SELECT
	COUNT(*) AS settlements,
	COALESCE(SUM(CASE WHEN subscription_payment_id IS NOT NULL THEN 1 ELSE 0 END), 0) AS subscription_payments,
	COALESCE(SUM(CASE WHEN payment_id IS NOT NULL THEN 1 ELSE 0 END), 0) AS one_time_payments,
	COALESCE(SUM(fee_amount), 0) AS fee_amount,
	COALESCE(SUM(merchant_amount), 0) AS merchant_amount,
	COALESCE(SUM(total_amount), 0) AS total_amount,
	COALESCE(SUM(gas_cost), 0) AS gas_cost
FROM platform_revenue
WHERE organization_id = ? AND created_at >= ? AND created_at < ?`

type RevenueRepository struct {
	db *sqlx.DB
}

func NewRevenueRepository(db *sqlx.DB) revenue.RepositoryAPI {
	return &RevenueRepository{db: db}
}

func (r *RevenueRepository) Totals(ctx context.Context, organizationID string, from, to time.Time) (revenue.Totals, error) {
	var totals revenue.Totals
	if err := r.db.GetContext(ctx, &totals, r.db.Rebind(totalsQuery), organizationID, from, to); err != nil {
		return revenue.Totals{}, err
	}
	return totals, nil
}
