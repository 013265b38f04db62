// Package revenue reports platform revenue recorded by confirmed settlements.
package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/recurpay/internal"
)

const (
	DefaultWindow = 30 * 24 * time.Hour
	MaxWindow     = 366 * 24 * time.Hour
)

// Totals are summed platform_revenue rows for one organization and window.
type Totals struct {
	Settlements          int64 `db:"settlements" json:"settlements"`
	SubscriptionPayments int64 `db:"subscription_payments" json:"subscription_payments"`
	OneTimePayments      int64 `db:"one_time_payments" json:"one_time_payments"`
	FeeAmount            int64 `db:"fee_amount" json:"fee_amount"`
	MerchantAmount       int64 `db:"merchant_amount" json:"merchant_amount"`
	TotalAmount          int64 `db:"total_amount" json:"total_amount"`
	GasCost              int64 `db:"gas_cost" json:"gas_cost"`
}

type Summary struct {
	OrganizationID string    `json:"organization_id"`
	From           time.Time `json:"from"`
	To             time.Time `json:"to"`
	Totals
	// NetFee is the fee income left after the network costs the platform paid.
	NetFee int64 `json:"net_fee"`
}

type RepositoryAPI interface {
	Totals(ctx context.Context, organizationID string, from, to time.Time) (Totals, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Summary sums revenue in [from, to). Zero bounds default to the trailing thirty days.
func (s *Service) Summary(ctx context.Context, organizationID string, from, to time.Time) (*Summary, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.Add(-DefaultWindow)
	}
	if !from.Before(to) {
		return nil, errs.NewValidationFieldError("from", "from must be before to", errs.ErrCodeValidationFailed)
	}
	if to.Sub(from) > MaxWindow {
		return nil, errs.NewValidationFieldError("from", "window must not exceed 366 days", errs.ErrCodeValidationFailed)
	}

	totals, err := s.repo.Totals(ctx, organizationID, from.UTC(), to.UTC())
	if err != nil {
		s.logger.Error("failed to sum revenue", "error", err, "organization_id", organizationID)
		return nil, fmt.Errorf("failed to sum revenue: %w", err)
	}

	return &Summary{
		OrganizationID: organizationID,
		From:           from.UTC(),
		To:             to.UTC(),
		Totals:         totals,
		NetFee:         totals.FeeAmount - totals.GasCost,
	}, nil
}
