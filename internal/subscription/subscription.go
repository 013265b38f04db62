// Package subscription owns the recurring agreement lifecycle: creation with an approval
// allowance, activation with the first charge, and cancellation.
package subscription

import (
	"context"
	"errors"
	"time"

	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/delegation"
	"github.com/frahmantamala/recurpay/internal/settlement"
)

// MaxCycles bounds how many billing periods one approval may cover.
const MaxCycles = 120

var (
	ErrNotFound = errors.New("subscription not found")
	ErrExists   = errors.New("open subscription already exists")
)

var transitions = map[subdm.Status][]subdm.Status{
	subdm.StatusPendingApproval: {subdm.StatusActive, subdm.StatusCancelled},
	subdm.StatusActive:          {subdm.StatusPaused, subdm.StatusCancelled, subdm.StatusExpired},
	subdm.StatusPaused:          {subdm.StatusActive, subdm.StatusCancelled},
}

// CanTransition reports whether from may move to to. Cancelled and expired are terminal.
func CanTransition(from, to subdm.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type RepositoryAPI interface {
	Create(ctx context.Context, s *subdm.Subscription) error
	GetByID(ctx context.Context, id string) (*subdm.Subscription, error)
	HasOpen(ctx context.Context, payerWallet, planID string) (bool, error)
	// RecordApproval claims a pending row for activation by storing the approval signature.
	// It returns false when the row left pending approval or another activation holds it.
	RecordApproval(ctx context.Context, id, signature string, at time.Time) (bool, error)
	// ReleaseApproval drops the claim so a failed activation can be retried.
	ReleaseApproval(ctx context.Context, id, signature string, at time.Time) error
	// Transition moves the row to to only if its current status is one of from.
	Transition(ctx context.Context, id string, from []subdm.Status, to subdm.Status, at time.Time) (bool, error)
}

type PlanSource interface {
	GetPlan(ctx context.Context, id string) (*catalogdm.SubscriptionPlan, error)
}

type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (*orgdm.Organization, error)
}

type DelegationAPI interface {
	DelegateAuthority() string
	CreateApprovalAllowance(ctx context.Context, req delegation.ApprovalRequest) (*delegation.Allowance, error)
	VerifyAllowance(ctx context.Context, delegatedAccount, expectedDelegate string, minimumAmount int64) (bool, error)
	CreateRevocationTransaction(ctx context.Context, payerWallet, tokenMint string) (string, error)
}

type SignatureConfirmer interface {
	Confirm(ctx context.Context, signature string, maxAttempts int) (bool, error)
}

type FirstCycleExecutor interface {
	ExecuteFirst(ctx context.Context, t settlement.Target) settlement.Result
}
