package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/chain"
	sessiondm "github.com/frahmantamala/recurpay/internal/core/datamodel/session"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	"github.com/frahmantamala/recurpay/internal/core/events"
	"github.com/frahmantamala/recurpay/internal/fee"
	"github.com/frahmantamala/recurpay/internal/settlement"
)

// DeliveryClient marks payments the payer submitted from their own wallet.
const DeliveryClient = "client"

type Config struct {
	PlatformFee       int64
	PlatformFeeWallet string
	TTL               time.Duration
	ConfirmAttempts   int
	ComputeUnits      uint32
}

type Service struct {
	repo          RepositoryAPI
	products      ProductSource
	organizations OrganizationSource
	gateway       chain.Gateway
	authority     chain.Signer
	notifier      settlement.Notifier
	cfg           Config
	now           func() time.Time
	logger        *slog.Logger
}

func NewService(repo RepositoryAPI, products ProductSource, organizations OrganizationSource, gateway chain.Gateway, authority chain.Signer, notifier settlement.Notifier, cfg Config, logger *slog.Logger) *Service {
	if cfg.PlatformFee <= 0 {
		cfg.PlatformFee = fee.DefaultPlatformFee
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = settlement.DefaultConfirmAttempts
	}
	if cfg.ComputeUnits == 0 {
		cfg.ComputeUnits = chain.DefaultComputeUnits
	}
	return &Service{
		repo:          repo,
		products:      products,
		organizations: organizations,
		gateway:       gateway,
		authority:     authority,
		notifier:      notifier,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Get(ctx context.Context, organizationID, id string) (*sessiondm.PaymentSession, error) {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.OrganizationID != organizationID {
		return nil, errs.ErrSessionNotFound
	}
	return sess, nil
}

// Create quotes the product and returns a transfer pre-signed by the platform as fee payer.
// The payer signs as transfer owner and submits it.
func (s *Service) Create(ctx context.Context, organizationID string, req CreateSessionDTO) (*sessiondm.PaymentSession, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	product, err := s.products.GetProduct(ctx, organizationID, req.ProductID)
	if err != nil {
		return nil, err
	}
	org, err := s.organizations.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	amounts, err := fee.ForProduct(product.Price, s.cfg.PlatformFee)
	if err != nil {
		return nil, errs.NewValidationFieldError("price", err.Error(), errs.ErrCodeInvalidAmount)
	}

	source, err := chain.TokenAccountAddress(req.PayerWallet, product.TokenMint)
	if err != nil {
		return nil, errs.NewValidationFieldError("payer_wallet", err.Error(), errs.ErrCodeInvalidWallet)
	}
	feeAccount, err := settlement.PlatformFeeAccount(org.FeeWallet, s.cfg.PlatformFeeWallet, product.TokenMint)
	if err != nil {
		return nil, errs.NewInternalError("platform fee account unavailable", err)
	}

	block, err := s.gateway.LatestBlockReference(ctx)
	if err != nil {
		return nil, errs.NewExternalError("failed to fetch block reference", errs.ErrCodeChainGateway, err)
	}
	priorityFee, err := s.gateway.PriorityFeeEstimate(ctx, []string{source, product.MerchantAccount, feeAccount})
	if err != nil {
		return nil, errs.NewExternalError("failed to estimate priority fee", errs.ErrCodeChainGateway, err)
	}

	tx := chain.NewTransaction(s.authority.Address(), block,
		chain.SetComputeUnitLimit(s.cfg.ComputeUnits),
		chain.SetComputeUnitPrice(priorityFee),
		chain.TransferChecked(source, product.TokenMint, product.MerchantAccount, req.PayerWallet, amounts.MerchantAmount, product.TokenDecimals),
		chain.TransferChecked(source, product.TokenMint, feeAccount, req.PayerWallet, amounts.PlatformFee, product.TokenDecimals),
	)
	if err := tx.Sign(s.authority); err != nil {
		return nil, fmt.Errorf("failed to pre-sign session transaction: %w", err)
	}
	encoded, err := tx.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode session transaction: %w", err)
	}

	now := s.now()
	sess := &sessiondm.PaymentSession{
		ProductID:         product.ID,
		OrganizationID:    organizationID,
		PayerWallet:       req.PayerWallet,
		MerchantAmount:    amounts.MerchantAmount,
		PlatformFee:       amounts.PlatformFee,
		TotalAmount:       amounts.TotalAmount,
		NetworkFee:        chain.NetworkFee(len(tx.RequiredSigners()), s.cfg.ComputeUnits, priorityFee),
		Transaction:       encoded,
		ExpectedSignature: tx.ID(),
		Status:            sessiondm.StatusPending,
		ExpiresAt:         now.Add(s.cfg.TTL),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		s.logger.Error("failed to create payment session", "error", err, "product_id", product.ID)
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	s.logger.Info("payment session created",
		"session_id", sess.ID,
		"organization_id", organizationID,
		"total_amount", sess.TotalAmount,
		"expires_at", sess.ExpiresAt)
	return sess, nil
}

// Confirm settles the session once its transaction is confirmed on chain. Terminal sessions
// are never modified.
func (s *Service) Confirm(ctx context.Context, organizationID, id string, req ConfirmSessionDTO) (*sessiondm.PaymentSession, *settledm.Payment, error) {
	sess, err := s.Get(ctx, organizationID, id)
	if err != nil {
		return nil, nil, err
	}
	if sess.Status == sessiondm.StatusExpired {
		return nil, nil, errs.ErrSessionExpired
	}
	if sess.Status.Terminal() {
		return nil, nil, errs.ErrSessionClosed.WithDetails(map[string]string{"status": string(sess.Status)})
	}

	now := s.now()
	if sess.IsExpired(now) {
		if _, err := s.repo.MarkExpired(ctx, sess.ID, now); err != nil {
			s.logger.Error("failed to expire session", "error", err, "session_id", sess.ID)
		}
		return nil, nil, errs.ErrSessionExpired
	}

	if err := req.Validate(); err != nil {
		return nil, nil, err
	}
	if req.Signature != sess.ExpectedSignature {
		return nil, nil, errs.NewValidationFieldError("signature", "signature does not belong to this session", errs.ErrCodeInvalidSignature)
	}

	confirmed, err := s.gateway.Confirm(ctx, req.Signature, s.cfg.ConfirmAttempts)
	if err != nil {
		return nil, nil, errs.NewExternalError("failed to confirm session transaction", errs.ErrCodeChainGateway, err)
	}
	if !confirmed {
		return nil, nil, errs.ErrNotConfirmed
	}

	completedAt := s.now()
	payment, err := s.repo.Complete(ctx, Completion{
		SessionID:      sess.ID,
		OrganizationID: organizationID,
		Signature:      req.Signature,
		DeliveryMethod: DeliveryClient,
		Amounts: fee.Breakdown{
			MerchantAmount: sess.MerchantAmount,
			PlatformFee:    sess.PlatformFee,
			TotalAmount:    sess.TotalAmount,
		},
		GasCost:     sess.NetworkFee,
		CompletedAt: completedAt,
	})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, nil, errs.ErrSessionClosed
		}
		s.logger.Error("failed to complete session", "error", err, "session_id", sess.ID)
		return nil, nil, fmt.Errorf("failed to complete session: %w", err)
	}

	sess.Status = sessiondm.StatusCompleted
	sess.CompletedAt = &completedAt

	if s.notifier != nil {
		err := s.notifier.Notify(ctx, organizationID, events.EventTypePaymentSucceeded, map[string]interface{}{
			"payment_id":      payment.ID,
			"session_id":      sess.ID,
			"product_id":      sess.ProductID,
			"payer_wallet":    sess.PayerWallet,
			"signature":       req.Signature,
			"total_amount":    sess.TotalAmount,
			"merchant_amount": sess.MerchantAmount,
			"platform_fee":    sess.PlatformFee,
		})
		if err != nil {
			s.logger.Error("failed to queue notification", "error", err, "session_id", sess.ID)
		}
	}

	s.logger.Info("payment session completed", "session_id", sess.ID, "payment_id", payment.ID, "signature", req.Signature)
	return sess, payment, nil
}

// ExpireStale flips pending sessions past their TTL to expired.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired stale payment sessions", "count", n)
	}
	return n, nil
}
