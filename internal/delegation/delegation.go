// Package delegation builds the approval and revocation transactions a payer signs to
// grant or withdraw the backend authority's spending allowance, and checks that an
// allowance is still in place before a charge relies on it.
package delegation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/recurpay/internal/chain"
)

const (
	DefaultMaxCycles = 12
	ExpiryBuffer     = 30 * 24 * time.Hour
)

var (
	ErrDelegatedAccountNotFound = errors.New("delegation: delegated token account not found")
	ErrInvalidRequest           = errors.New("delegation: invalid approval request")
)

type ApprovalRequest struct {
	PayerWallet       string
	TokenMint         string
	TokenDecimals     uint8
	PerCycleAmount    int64
	BillingPeriodDays int
	MaxCycles         int
}

type Allowance struct {
	ApprovalTransaction string    `json:"approval_transaction"`
	DelegateAuthority   string    `json:"delegate_authority"`
	DelegatedAccount    string    `json:"delegated_account"`
	TotalAllowance      int64     `json:"total_allowance"`
	ExpiryDate          time.Time `json:"expiry_date"`
	MaxCycles           int       `json:"max_cycles"`
	Instructions        []string  `json:"instructions"`
}

type Manager struct {
	gateway   chain.Gateway
	authority chain.Signer
	now       func() time.Time
	logger    *slog.Logger
}

func NewManager(gateway chain.Gateway, authority chain.Signer, logger *slog.Logger) *Manager {
	return &Manager{
		gateway:   gateway,
		authority: authority,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) DelegateAuthority() string {
	return m.authority.Address()
}

// CreateApprovalAllowance returns an unsigned approval transaction. It only reads chain
// state, so calling it repeatedly for the same pending subscription is safe.
func (m *Manager) CreateApprovalAllowance(ctx context.Context, req ApprovalRequest) (*Allowance, error) {
	if req.MaxCycles <= 0 {
		req.MaxCycles = DefaultMaxCycles
	}
	if req.PerCycleAmount <= 0 || req.BillingPeriodDays <= 0 {
		return nil, fmt.Errorf("%w: amount=%d period_days=%d", ErrInvalidRequest, req.PerCycleAmount, req.BillingPeriodDays)
	}
	if err := chain.ValidateAddress(req.PayerWallet); err != nil {
		return nil, err
	}

	delegatedAccount, err := chain.TokenAccountAddress(req.PayerWallet, req.TokenMint)
	if err != nil {
		return nil, err
	}

	block, err := m.gateway.LatestBlockReference(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block reference: %w", err)
	}

	total := req.PerCycleAmount * int64(req.MaxCycles)
	cycles := time.Duration(req.BillingPeriodDays*req.MaxCycles) * 24 * time.Hour
	expiry := m.now().Add(cycles + ExpiryBuffer)

	tx := chain.NewTransaction(req.PayerWallet, block,
		chain.ApproveChecked(delegatedAccount, req.TokenMint, m.authority.Address(), req.PayerWallet, total, req.TokenDecimals),
	)
	encoded, err := tx.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval transaction: %w", err)
	}

	m.logger.Info("approval allowance prepared",
		"payer_wallet", req.PayerWallet,
		"delegated_account", delegatedAccount,
		"total_allowance", total,
		"max_cycles", req.MaxCycles)

	return &Allowance{
		ApprovalTransaction: encoded,
		DelegateAuthority:   m.authority.Address(),
		DelegatedAccount:    delegatedAccount,
		TotalAllowance:      total,
		ExpiryDate:          expiry,
		MaxCycles:           req.MaxCycles,
		Instructions: []string{
			"Review the approval in your wallet: it lets the billing authority transfer up to the total allowance from your token account.",
			fmt.Sprintf("The authority can charge %d per cycle for up to %d cycles.", req.PerCycleAmount, req.MaxCycles),
			"Sign and submit the transaction, then send the signature back to activate the subscription.",
			"You can revoke the allowance at any time by cancelling the subscription and signing the revocation transaction.",
		},
	}, nil
}

// VerifyAllowance checks delegate identity and remaining delegated amount. A missing
// account is a hard error, not a retryable condition.
func (m *Manager) VerifyAllowance(ctx context.Context, delegatedAccount, expectedDelegate string, minimumAmount int64) (bool, error) {
	account, err := m.gateway.TokenAccount(ctx, delegatedAccount)
	if err != nil {
		if errors.Is(err, chain.ErrAccountNotFound) {
			return false, fmt.Errorf("%w: %s", ErrDelegatedAccountNotFound, delegatedAccount)
		}
		return false, fmt.Errorf("failed to read delegated account: %w", err)
	}

	if account.Delegate != expectedDelegate {
		m.logger.Warn("allowance delegate mismatch",
			"delegated_account", delegatedAccount,
			"delegate", account.Delegate,
			"expected", expectedDelegate)
		return false, nil
	}
	if account.DelegatedAmount < minimumAmount || account.Amount < minimumAmount {
		m.logger.Warn("allowance below required amount",
			"delegated_account", delegatedAccount,
			"delegated_amount", account.DelegatedAmount,
			"balance", account.Amount,
			"required", minimumAmount)
		return false, nil
	}
	return true, nil
}

// CreateRevocationTransaction returns an unsigned revoke transaction. Ledger cancellation
// never waits on it.
func (m *Manager) CreateRevocationTransaction(ctx context.Context, payerWallet, tokenMint string) (string, error) {
	delegatedAccount, err := chain.TokenAccountAddress(payerWallet, tokenMint)
	if err != nil {
		return "", err
	}
	block, err := m.gateway.LatestBlockReference(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch block reference: %w", err)
	}

	tx := chain.NewTransaction(payerWallet, block, chain.Revoke(delegatedAccount, payerWallet))
	return tx.Encode()
}
