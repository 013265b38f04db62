// Package settlement executes one delegated charge per unit of work: it splits the amount,
// records a pending row, builds and signs the transfer as delegate, submits it, waits for
// confirmation and applies the outcome to the ledger.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/frahmantamala/recurpay/internal/chain"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/fee"
)

// MaxConsecutiveFailures pauses a subscription when its failed counter reaches it.
const MaxConsecutiveFailures = 3

const DefaultConfirmAttempts = 30

var (
	ErrNotBillable           = errors.New("settlement: subscription is not in a billable state")
	ErrAllowanceInsufficient = errors.New("settlement: delegated allowance is missing or insufficient")
	ErrConfirmationTimeout   = errors.New("settlement: transaction was not confirmed in time")
	ErrPaymentNotPending     = errors.New("settlement: payment is no longer pending")
	ErrNoFeeWallet           = errors.New("settlement: no platform fee wallet configured")
)

// Target bundles what a charge needs. PlatformFeeAccount is the platform's token account for
// the plan mint.
type Target struct {
	Subscription       *subdm.Subscription
	Plan               *catalogdm.SubscriptionPlan
	PlatformFeeAccount string
}

type Result struct {
	Success        bool
	PaymentID      string
	TxSignature    string
	DeliveryMethod string
	Paused         bool
	Err            error
}

type CycleSuccess struct {
	PaymentID       string
	SubscriptionID  string
	OrganizationID  string
	FromStatus      subdm.Status
	Signature       string
	DeliveryMethod  string
	GasCost         int64
	Amounts         fee.Breakdown
	ConfirmedAt     time.Time
	NextBillingDate time.Time
}

type CycleFailure struct {
	PaymentID      string
	SubscriptionID string
	Signature      string
	ErrorMessage   string
	// CountTowardPause is false for the first cycle, which never pauses.
	CountTowardPause bool
	FailedAt         time.Time
}

type RepositoryAPI interface {
	CreatePending(ctx context.Context, p *settledm.SubscriptionPayment) error
	// CompleteCycle confirms the payment, appends revenue and advances the subscription.
	// advanced is false when the subscription left FromStatus concurrently.
	CompleteCycle(ctx context.Context, c CycleSuccess) (advanced bool, err error)
	// FailCycle returns the subscription's failed counter after the update.
	FailCycle(ctx context.Context, c CycleFailure) (failedPayments int, err error)
	Pause(ctx context.Context, subscriptionID string, at time.Time) (bool, error)
	GetSubscriptionPayment(ctx context.Context, id string) (*settledm.SubscriptionPayment, error)
	ListSubscriptionPayments(ctx context.Context, subscriptionID string) ([]*settledm.SubscriptionPayment, error)
}

type AllowanceVerifier interface {
	VerifyAllowance(ctx context.Context, delegatedAccount, expectedDelegate string, minimumAmount int64) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, organizationID, eventType string, data map[string]interface{}) error
}

// PlatformFeeAccount resolves the platform token account for mint. A wallet set on the
// organization overrides the configured default.
func PlatformFeeAccount(organizationWallet, defaultWallet, mint string) (string, error) {
	wallet := organizationWallet
	if wallet == "" {
		wallet = defaultWallet
	}
	if wallet == "" {
		return "", ErrNoFeeWallet
	}
	return chain.TokenAccountAddress(wallet, mint)
}
