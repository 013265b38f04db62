package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/recurpay/internal/chain"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/internal/fee"
	"github.com/frahmantamala/recurpay/pkg/logger"
)

type Config struct {
	ConfirmAttempts int
	ComputeUnits    uint32
}

type Engine struct {
	repo      RepositoryAPI
	gateway   chain.Gateway
	verifier  AllowanceVerifier
	authority chain.Signer
	notifier  Notifier
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

func NewEngine(repo RepositoryAPI, gateway chain.Gateway, verifier AllowanceVerifier, authority chain.Signer, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = DefaultConfirmAttempts
	}
	if cfg.ComputeUnits == 0 {
		cfg.ComputeUnits = chain.DefaultComputeUnits
	}
	return &Engine{
		repo:      repo,
		gateway:   gateway,
		verifier:  verifier,
		authority: authority,
		notifier:  notifier,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Execute charges one due cycle of an active subscription. A failure is final for this
// cycle; the next scheduled cycle is the retry.
func (e *Engine) Execute(ctx context.Context, t Target) Result {
	return e.execute(ctx, t, false)
}

// ExecuteFirst charges the opt-in cycle and activates the subscription on success.
func (e *Engine) ExecuteFirst(ctx context.Context, t Target) Result {
	return e.execute(ctx, t, true)
}

func (e *Engine) execute(ctx context.Context, t Target, first bool) Result {
	sub := t.Subscription
	log := logger.FromOr(ctx, e.logger).With(
		"subscription_id", sub.ID,
		"organization_id", sub.OrganizationID,
		"first_cycle", first)

	expected := subdm.StatusActive
	if first {
		expected = subdm.StatusPendingApproval
	}
	if sub.Status != expected {
		return Result{Err: fmt.Errorf("%w: status %s", ErrNotBillable, sub.Status)}
	}

	amounts, err := fee.Split(sub.TotalAmount, sub.PlatformAmount)
	if err != nil {
		log.Error("invalid subscription amounts", "error", err)
		return Result{Err: err}
	}

	now := e.now()
	billingDate := sub.NextBillingDate
	if first {
		billingDate = now
	}

	payment := &settledm.SubscriptionPayment{
		SubscriptionID: sub.ID,
		OrganizationID: sub.OrganizationID,
		MerchantAmount: amounts.MerchantAmount,
		PlatformFee:    amounts.PlatformFee,
		TotalAmount:    amounts.TotalAmount,
		Status:         settledm.StatusPending,
		BillingDate:    billingDate,
	}
	if err := e.repo.CreatePending(ctx, payment); err != nil {
		log.Error("failed to record pending settlement", "error", err)
		return Result{Err: fmt.Errorf("failed to record pending settlement: %w", err)}
	}
	log = log.With("payment_id", payment.ID)

	submitted, gasCost, err := e.settle(ctx, t, amounts)
	if err != nil {
		return e.fail(ctx, log, t, payment, submitted.Signature, err, first)
	}

	period := time.Duration(t.Plan.BillingPeriodDays) * 24 * time.Hour
	next := sub.NextBillingDate.Add(period)
	if first {
		next = now.Add(period)
	}

	result := Result{
		Success:        true,
		PaymentID:      payment.ID,
		TxSignature:    submitted.Signature,
		DeliveryMethod: submitted.DeliveryMethod,
	}

	advanced, err := e.repo.CompleteCycle(ctx, CycleSuccess{
		PaymentID:       payment.ID,
		SubscriptionID:  sub.ID,
		OrganizationID:  sub.OrganizationID,
		FromStatus:      expected,
		Signature:       submitted.Signature,
		DeliveryMethod:  submitted.DeliveryMethod,
		GasCost:         gasCost,
		Amounts:         amounts,
		ConfirmedAt:     e.now(),
		NextBillingDate: next,
	})
	if err != nil {
		// funds moved on chain; surface the ledger error without reporting a failed charge
		log.Error("settlement confirmed on chain but ledger update failed",
			"error", err,
			"signature", submitted.Signature)
		result.Err = fmt.Errorf("failed to record confirmed settlement: %w", err)
		return result
	}
	if !advanced {
		log.Warn("subscription changed state during settlement", "expected_status", expected)
	}

	log.Info("settlement confirmed",
		"signature", submitted.Signature,
		"delivery_method", submitted.DeliveryMethod,
		"total_amount", amounts.TotalAmount,
		"gas_cost", gasCost,
		"next_billing_date", next)

	e.notify(ctx, log, sub.OrganizationID, events.EventTypePaymentSucceeded, map[string]interface{}{
		"payment_id":        payment.ID,
		"subscription_id":   sub.ID,
		"signature":         submitted.Signature,
		"delivery_method":   submitted.DeliveryMethod,
		"total_amount":      amounts.TotalAmount,
		"merchant_amount":   amounts.MerchantAmount,
		"platform_fee":      amounts.PlatformFee,
		"next_billing_date": next,
		"first_cycle":       first,
	})

	return result
}

// settle builds, signs, submits and confirms the two-leg transfer. The returned SubmitResult
// carries the signature whenever submission got that far, even on error.
func (e *Engine) settle(ctx context.Context, t Target, amounts fee.Breakdown) (chain.SubmitResult, int64, error) {
	sub := t.Subscription
	authority := e.authority.Address()

	ok, err := e.verifier.VerifyAllowance(ctx, sub.DelegatedAccount, authority, amounts.TotalAmount)
	if err != nil {
		return chain.SubmitResult{}, 0, fmt.Errorf("allowance check failed: %w", err)
	}
	if !ok {
		return chain.SubmitResult{}, 0, ErrAllowanceInsufficient
	}

	block, err := e.gateway.LatestBlockReference(ctx)
	if err != nil {
		return chain.SubmitResult{}, 0, fmt.Errorf("failed to fetch block reference: %w", err)
	}

	merchantAccount := t.Plan.MerchantAccount
	platformAccount := t.PlatformFeeAccount

	priorityFee, err := e.gateway.PriorityFeeEstimate(ctx, []string{sub.DelegatedAccount, merchantAccount, platformAccount})
	if err != nil {
		return chain.SubmitResult{}, 0, fmt.Errorf("failed to estimate priority fee: %w", err)
	}

	sponsorship, err := e.gateway.SponsorshipInstructions(ctx, authority)
	if err != nil {
		return chain.SubmitResult{}, 0, fmt.Errorf("failed to fetch sponsorship instructions: %w", err)
	}

	ixs := []chain.Instruction{
		chain.SetComputeUnitLimit(e.cfg.ComputeUnits),
		chain.SetComputeUnitPrice(priorityFee),
	}
	ixs = append(ixs, sponsorship...)
	ixs = append(ixs,
		chain.TransferChecked(sub.DelegatedAccount, t.Plan.TokenMint, merchantAccount, authority, amounts.MerchantAmount, t.Plan.TokenDecimals),
		chain.TransferChecked(sub.DelegatedAccount, t.Plan.TokenMint, platformAccount, authority, amounts.PlatformFee, t.Plan.TokenDecimals),
	)

	tx := chain.NewTransaction(authority, block, ixs...)
	if err := tx.Sign(e.authority); err != nil {
		return chain.SubmitResult{}, 0, fmt.Errorf("failed to sign settlement: %w", err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		return chain.SubmitResult{}, 0, fmt.Errorf("failed to serialize settlement: %w", err)
	}

	gasCost := chain.NetworkFee(len(tx.RequiredSigners()), e.cfg.ComputeUnits, priorityFee)
	for _, ix := range sponsorship {
		if ix.Kind == chain.KindTip {
			gasCost += ix.Amount
		}
	}

	submitted, err := e.gateway.Submit(ctx, raw)
	if err != nil {
		return chain.SubmitResult{}, gasCost, fmt.Errorf("failed to submit settlement: %w", err)
	}

	confirmed, err := e.gateway.Confirm(ctx, submitted.Signature, e.cfg.ConfirmAttempts)
	if err != nil {
		return submitted, gasCost, fmt.Errorf("confirmation failed: %w", err)
	}
	if !confirmed {
		return submitted, gasCost, ErrConfirmationTimeout
	}
	return submitted, gasCost, nil
}

func (e *Engine) fail(ctx context.Context, log *slog.Logger, t Target, payment *settledm.SubscriptionPayment, signature string, cause error, first bool) Result {
	sub := t.Subscription
	result := Result{PaymentID: payment.ID, TxSignature: signature, Err: cause}

	log.Warn("settlement failed", "error", cause, "signature", signature)

	failed, err := e.repo.FailCycle(ctx, CycleFailure{
		PaymentID:        payment.ID,
		SubscriptionID:   sub.ID,
		Signature:        signature,
		ErrorMessage:     cause.Error(),
		CountTowardPause: !first,
		FailedAt:         e.now(),
	})
	if err != nil {
		log.Error("failed to record settlement failure", "error", err)
		result.Err = errors.Join(cause, fmt.Errorf("failed to record settlement failure: %w", err))
		return result
	}

	if first || failed < MaxConsecutiveFailures {
		return result
	}

	paused, err := e.repo.Pause(ctx, sub.ID, e.now())
	if err != nil {
		log.Error("failed to pause subscription", "error", err, "failed_payments", failed)
		return result
	}
	if !paused {
		return result
	}

	result.Paused = true
	log.Warn("subscription paused after consecutive failures", "failed_payments", failed)
	e.notify(ctx, log, sub.OrganizationID, events.EventTypeSubscriptionPaused, map[string]interface{}{
		"subscription_id": sub.ID,
		"failed_payments": failed,
		"reason":          cause.Error(),
	})
	return result
}

func (e *Engine) notify(ctx context.Context, log *slog.Logger, organizationID, eventType string, data map[string]interface{}) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, organizationID, eventType, data); err != nil {
		log.Error("failed to queue notification", "error", err, "event_type", eventType)
	}
}
