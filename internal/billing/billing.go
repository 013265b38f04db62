// Package billing sweeps due subscriptions and drives the settlement engine across them,
// one organization at a time.
package billing

import (
	"context"
	"errors"
	"time"

	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/settlement"
)

const (
	runLockKey        = "billing-run"
	DefaultBatchLimit = 500
	DefaultLeaseTTL   = 10 * time.Minute
	DefaultLockTTL    = 30 * time.Minute

	// ReconcileHold keeps a subscription out of billing after a charge landed on chain but
	// could not be recorded.
	ReconcileHold = 30 * 24 * time.Hour
)

var ErrRunInProgress = errors.New("billing: another run is in progress")

type RepositoryAPI interface {
	// FindDue returns active subscriptions with next billing date at or before now,
	// ordered by organization then billing date.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*subdm.Subscription, error)
	// Claim leases a still-due active subscription until the given time and returns the
	// fresh row, or nil when another worker holds it or it is no longer due.
	Claim(ctx context.Context, id string, now, until time.Time) (*subdm.Subscription, error)
	Release(ctx context.Context, id string) error
	// Hold extends the lease on a claimed subscription until the given time.
	Hold(ctx context.Context, id string, until time.Time) error
	Expire(ctx context.Context, id string, at time.Time) (bool, error)
}

type PlanSource interface {
	GetPlan(ctx context.Context, id string) (*catalogdm.SubscriptionPlan, error)
}

type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (*orgdm.Organization, error)
}

type Executor interface {
	Execute(ctx context.Context, t settlement.Target) settlement.Result
}

type Summary struct {
	TotalProcessed int `json:"total_processed"`
	Successful     int `json:"successful"`
	Failed         int `json:"failed"`
	Skipped        int `json:"skipped"`
	Expired        int `json:"expired"`
	Paused         int `json:"paused"`
	Unreconciled   int `json:"unreconciled"`
	Organizations  int `json:"organizations"`
}
