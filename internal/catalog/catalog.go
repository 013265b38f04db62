// Package catalog serves products and subscription plans to the billing flows.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/core/common/validation"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrPlanNotFound    = errors.New("plan not found")
)

type RepositoryAPI interface {
	CreateProduct(ctx context.Context, p *catalogdm.Product) error
	CreatePlan(ctx context.Context, p *catalogdm.SubscriptionPlan) error
	GetProduct(ctx context.Context, id string) (*catalogdm.Product, error)
	GetPlan(ctx context.Context, id string) (*catalogdm.SubscriptionPlan, error)
}

type Service struct {
	repo        RepositoryAPI
	platformFee int64
	logger      *slog.Logger
}

func NewService(repo RepositoryAPI, platformFee int64, logger *slog.Logger) *Service {
	return &Service{repo: repo, platformFee: platformFee, logger: logger}
}

func (s *Service) CreateProduct(ctx context.Context, p *catalogdm.Product) error {
	v := validation.NewValidator()
	v.Field("name", p.Name).Required().MaxLength(200)
	v.Field("price", p.Price).MinInt(1, errs.ErrCodeInvalidAmount)
	v.Field("token_mint", p.TokenMint).Required().WalletAddress()
	v.Field("merchant_account", p.MerchantAccount).Required().WalletAddress()
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// CreatePlan enforces amountPerBilling > platform fee so every cycle leaves the merchant a share.
func (s *Service) CreatePlan(ctx context.Context, p *catalogdm.SubscriptionPlan) error {
	v := validation.NewValidator()
	v.Field("name", p.Name).Required().MaxLength(200)
	v.Field("billing_period_days", p.BillingPeriodDays).MinInt(1, errs.ErrCodeInvalidPeriod)
	v.Field("amount_per_billing", p.AmountPerBilling).MinInt(s.platformFee+1, errs.ErrCodeInvalidAmount)
	v.Field("token_mint", p.TokenMint).Required().WalletAddress()
	v.Field("merchant_account", p.MerchantAccount).Required().WalletAddress()
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.repo.CreatePlan(ctx, p); err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

// GetProduct returns an active product owned by organizationID.
func (s *Service) GetProduct(ctx context.Context, organizationID, id string) (*catalogdm.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, errs.ErrProductNotFound
		}
		s.logger.Error("failed to load product", "error", err, "product_id", id)
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if p.OrganizationID != organizationID || !p.Active {
		return nil, errs.ErrProductNotFound
	}
	return p, nil
}

// GetPlan returns a plan regardless of owner; callers scope by organization.
func (s *Service) GetPlan(ctx context.Context, id string) (*catalogdm.SubscriptionPlan, error) {
	p, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, errs.ErrPlanNotFound
		}
		s.logger.Error("failed to load plan", "error", err, "plan_id", id)
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	return p, nil
}
