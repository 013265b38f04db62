// Package session runs one-time product purchases: quote, pre-signed transfer for the payer
// to countersign, and confirmation once the payer has submitted it.
package session

import (
	"context"
	"errors"
	"time"

	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	sessiondm "github.com/frahmantamala/recurpay/internal/core/datamodel/session"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	"github.com/frahmantamala/recurpay/internal/fee"
)

const DefaultTTL = 30 * time.Minute

var (
	ErrNotFound = errors.New("payment session not found")
	ErrClosed   = errors.New("payment session is no longer pending")
)

type Completion struct {
	SessionID      string
	OrganizationID string
	Signature      string
	DeliveryMethod string
	Amounts        fee.Breakdown
	GasCost        int64
	CompletedAt    time.Time
}

type RepositoryAPI interface {
	Create(ctx context.Context, s *sessiondm.PaymentSession) error
	GetByID(ctx context.Context, id string) (*sessiondm.PaymentSession, error)
	// Complete moves pending to completed and records the confirmed payment and revenue in
	// one transaction. ErrClosed when the session already left pending.
	Complete(ctx context.Context, c Completion) (*settledm.Payment, error)
	MarkExpired(ctx context.Context, id string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type ProductSource interface {
	GetProduct(ctx context.Context, organizationID, id string) (*catalogdm.Product, error)
}

type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (*orgdm.Organization, error)
}
