package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/recurpay/internal"
	catalogdm "github.com/frahmantamala/recurpay/internal/core/datamodel/catalog"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/internal/delegation"
	"github.com/frahmantamala/recurpay/internal/fee"
	"github.com/frahmantamala/recurpay/internal/settlement"
)

type Config struct {
	PlatformFee       int64
	PlatformFeeWallet string
	ConfirmAttempts   int
	DefaultMaxCycles  int
}

type Dependencies struct {
	Plans         PlanSource
	Organizations OrganizationSource
	Delegation    DelegationAPI
	Confirmer     SignatureConfirmer
	Executor      FirstCycleExecutor
	Notifier      settlement.Notifier
}

type Service struct {
	repo   RepositoryAPI
	deps   Dependencies
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, deps Dependencies, cfg Config, logger *slog.Logger) *Service {
	if cfg.PlatformFee <= 0 {
		cfg.PlatformFee = fee.DefaultPlatformFee
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = settlement.DefaultConfirmAttempts
	}
	if cfg.DefaultMaxCycles <= 0 {
		cfg.DefaultMaxCycles = delegation.DefaultMaxCycles
	}
	return &Service{
		repo:   repo,
		deps:   deps,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the subscription if organizationID owns it.
func (s *Service) Get(ctx context.Context, organizationID, id string) (*subdm.Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.ErrSubscriptionNotFound
		}
		s.logger.Error("failed to load subscription", "error", err, "subscription_id", id)
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.OrganizationID != organizationID {
		return nil, errs.ErrSubscriptionNotFound
	}
	return sub, nil
}

// Create stores a pending subscription and returns the allowance the payer must approve.
func (s *Service) Create(ctx context.Context, organizationID string, req CreateSubscriptionDTO) (*subdm.Subscription, *delegation.Allowance, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if req.MaxCycles == 0 {
		req.MaxCycles = s.cfg.DefaultMaxCycles
	}

	plan, err := s.ownedPlan(ctx, organizationID, req.PlanID)
	if err != nil {
		return nil, nil, err
	}
	if !plan.Active {
		return nil, nil, errs.ErrPlanNotFound
	}

	amounts, err := fee.Split(plan.AmountPerBilling, s.cfg.PlatformFee)
	if err != nil {
		return nil, nil, errs.NewValidationFieldError("amount_per_billing", err.Error(), errs.ErrCodeInvalidAmount)
	}

	open, err := s.repo.HasOpen(ctx, req.PayerWallet, plan.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check open subscriptions: %w", err)
	}
	if open {
		return nil, nil, errs.ErrSubscriptionExists
	}

	allowance, err := s.deps.Delegation.CreateApprovalAllowance(ctx, delegation.ApprovalRequest{
		PayerWallet:       req.PayerWallet,
		TokenMint:         plan.TokenMint,
		TokenDecimals:     plan.TokenDecimals,
		PerCycleAmount:    amounts.TotalAmount,
		BillingPeriodDays: plan.BillingPeriodDays,
		MaxCycles:         req.MaxCycles,
	})
	if err != nil {
		return nil, nil, errs.NewExternalError("failed to build approval transaction", errs.ErrCodeChainGateway, err)
	}

	expires := allowance.ExpiryDate
	sub := &subdm.Subscription{
		PlanID:             plan.ID,
		OrganizationID:     organizationID,
		PayerWallet:        req.PayerWallet,
		DelegatedAccount:   allowance.DelegatedAccount,
		TotalAmount:        amounts.TotalAmount,
		MerchantAmount:     amounts.MerchantAmount,
		PlatformAmount:     amounts.PlatformFee,
		Status:             subdm.StatusPendingApproval,
		NextBillingDate:    s.now(),
		AllowanceAmount:    allowance.TotalAllowance,
		AllowanceExpiresAt: &expires,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		if errors.Is(err, ErrExists) {
			return nil, nil, errs.ErrSubscriptionExists
		}
		s.logger.Error("failed to create subscription", "error", err, "plan_id", plan.ID)
		return nil, nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Info("subscription created",
		"subscription_id", sub.ID,
		"organization_id", organizationID,
		"plan_id", plan.ID,
		"total_allowance", allowance.TotalAllowance)

	return sub, allowance, nil
}

// ApprovalTransaction rebuilds the approval for a subscription still awaiting it.
func (s *Service) ApprovalTransaction(ctx context.Context, organizationID, id string) (*delegation.Allowance, error) {
	sub, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != subdm.StatusPendingApproval {
		return nil, errs.ErrInvalidTransition.WithDetails(map[string]string{"status": string(sub.Status)})
	}

	plan, err := s.ownedPlan(ctx, organizationID, sub.PlanID)
	if err != nil {
		return nil, err
	}

	maxCycles := s.cfg.DefaultMaxCycles
	if sub.TotalAmount > 0 && sub.AllowanceAmount > 0 {
		maxCycles = int(sub.AllowanceAmount / sub.TotalAmount)
	}

	allowance, err := s.deps.Delegation.CreateApprovalAllowance(ctx, delegation.ApprovalRequest{
		PayerWallet:       sub.PayerWallet,
		TokenMint:         plan.TokenMint,
		TokenDecimals:     plan.TokenDecimals,
		PerCycleAmount:    sub.TotalAmount,
		BillingPeriodDays: plan.BillingPeriodDays,
		MaxCycles:         maxCycles,
	})
	if err != nil {
		return nil, errs.NewExternalError("failed to build approval transaction", errs.ErrCodeChainGateway, err)
	}
	return allowance, nil
}

// Activate confirms the payer's approval, charges the first cycle and activates the
// subscription. A failed first charge leaves it pending approval.
func (s *Service) Activate(ctx context.Context, organizationID, id string, req ActivateDTO) (*subdm.Subscription, settlement.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, settlement.Result{}, err
	}

	sub, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, settlement.Result{}, err
	}
	if sub.Status != subdm.StatusPendingApproval {
		return nil, settlement.Result{}, errs.ErrInvalidTransition.WithDetails(map[string]string{"status": string(sub.Status)})
	}

	log := s.logger.With("subscription_id", sub.ID, "organization_id", organizationID)

	confirmed, err := s.deps.Confirmer.Confirm(ctx, req.ApprovalSignature, s.cfg.ConfirmAttempts)
	if err != nil {
		log.Error("approval confirmation failed", "error", err)
		return nil, settlement.Result{}, errs.NewExternalError("failed to confirm approval transaction", errs.ErrCodeChainGateway, err)
	}
	if !confirmed {
		return nil, settlement.Result{}, errs.ErrNotConfirmed
	}

	ok, err := s.deps.Delegation.VerifyAllowance(ctx, sub.DelegatedAccount, s.deps.Delegation.DelegateAuthority(), sub.TotalAmount)
	if err != nil {
		if errors.Is(err, delegation.ErrDelegatedAccountNotFound) {
			return nil, settlement.Result{}, errs.ErrAllowanceMissing.WithCause(err)
		}
		return nil, settlement.Result{}, errs.NewExternalError("failed to verify allowance", errs.ErrCodeChainGateway, err)
	}
	if !ok {
		return nil, settlement.Result{}, errs.ErrAllowanceMissing
	}

	recorded, err := s.repo.RecordApproval(ctx, sub.ID, req.ApprovalSignature, s.now())
	if err != nil {
		return nil, settlement.Result{}, fmt.Errorf("failed to record approval: %w", err)
	}
	if !recorded {
		return nil, settlement.Result{}, errs.ErrInvalidTransition
	}
	sig := req.ApprovalSignature
	sub.ApprovalSignature = &sig

	release := func() {
		if err := s.repo.ReleaseApproval(context.WithoutCancel(ctx), sub.ID, sig, s.now()); err != nil {
			log.Error("failed to release activation claim", "error", err)
		}
	}

	target, err := s.target(ctx, sub)
	if err != nil {
		release()
		return nil, settlement.Result{}, err
	}

	result := s.deps.Executor.ExecuteFirst(context.WithoutCancel(ctx), target)
	if !result.Success {
		log.Warn("first cycle failed", "error", result.Err)
		release()
		return nil, result, errs.NewExternalError("first payment failed", errs.ErrCodeSettlement, result.Err)
	}

	activated, err := s.repo.GetByID(ctx, sub.ID)
	if err != nil {
		return nil, result, fmt.Errorf("failed to reload subscription: %w", err)
	}

	s.notify(ctx, organizationID, events.EventTypeSubscriptionCreated, map[string]interface{}{
		"subscription_id":   activated.ID,
		"plan_id":           activated.PlanID,
		"payer_wallet":      activated.PayerWallet,
		"status":            activated.Status,
		"next_billing_date": activated.NextBillingDate,
		"first_payment_id":  result.PaymentID,
	})

	log.Info("subscription activated", "payment_id", result.PaymentID, "signature", result.TxSignature)
	return activated, result, nil
}

// Cancel ends the subscription in the ledger immediately. The returned revocation
// transaction is best-effort and may be empty.
func (s *Service) Cancel(ctx context.Context, organizationID, id string) (*subdm.Subscription, string, error) {
	sub, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, "", err
	}
	if !CanTransition(sub.Status, subdm.StatusCancelled) {
		return nil, "", errs.ErrInvalidTransition.WithDetails(map[string]string{"status": string(sub.Status)})
	}

	now := s.now()
	moved, err := s.repo.Transition(ctx, sub.ID, []subdm.Status{sub.Status}, subdm.StatusCancelled, now)
	if err != nil {
		return nil, "", fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if !moved {
		return nil, "", errs.ErrInvalidTransition
	}
	previous := sub.Status
	sub.Status = subdm.StatusCancelled
	sub.CancelledAt = &now

	s.notify(ctx, organizationID, events.EventTypeSubscriptionCancelled, map[string]interface{}{
		"subscription_id": sub.ID,
		"previous_status": previous,
		"cancelled_at":    now,
	})

	revocation := ""
	if plan, err := s.deps.Plans.GetPlan(ctx, sub.PlanID); err == nil {
		revocation, err = s.deps.Delegation.CreateRevocationTransaction(ctx, sub.PayerWallet, plan.TokenMint)
		if err != nil {
			s.logger.Warn("failed to build revocation transaction", "error", err, "subscription_id", sub.ID)
			revocation = ""
		}
	}

	s.logger.Info("subscription cancelled", "subscription_id", sub.ID, "organization_id", organizationID)
	return sub, revocation, nil
}

func (s *Service) ownedPlan(ctx context.Context, organizationID, planID string) (*catalogdm.SubscriptionPlan, error) {
	plan, err := s.deps.Plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.OrganizationID != organizationID {
		return nil, errs.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) target(ctx context.Context, sub *subdm.Subscription) (settlement.Target, error) {
	plan, err := s.deps.Plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return settlement.Target{}, err
	}
	org, err := s.deps.Organizations.GetOrganization(ctx, sub.OrganizationID)
	if err != nil {
		return settlement.Target{}, err
	}
	feeAccount, err := settlement.PlatformFeeAccount(org.FeeWallet, s.cfg.PlatformFeeWallet, plan.TokenMint)
	if err != nil {
		return settlement.Target{}, errs.NewInternalError("platform fee account unavailable", err)
	}
	return settlement.Target{Subscription: sub, Plan: plan, PlatformFeeAccount: feeAccount}, nil
}

func (s *Service) notify(ctx context.Context, organizationID, eventType string, data map[string]interface{}) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, organizationID, eventType, data); err != nil {
		s.logger.Error("failed to queue notification", "error", err, "event_type", eventType, "organization_id", organizationID)
	}
}
