// Package chain is the boundary between the billing engine and the ledger
// network. Nothing outside this package tree talks to the network directly.
package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var (
	ErrAccountNotFound  = errors.New("chain: account not found")
	ErrInvalidAddress   = errors.New("chain: invalid address")
	ErrInvalidSignature = errors.New("chain: invalid transaction signature")
	ErrTransactionError = errors.New("chain: transaction failed on chain")
)

const (
	// BaseFeePerSignature is the network fee charged per signature, in native minor units.
	BaseFeePerSignature int64 = 5000
	// DefaultComputeUnits covers two token transfers plus compute budget instructions.
	DefaultComputeUnits uint32 = 200_000
)

type BlockReference struct {
	Hash                 string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type SubmitResult struct {
	Signature      string  `json:"signature"`
	DeliveryMethod string  `json:"deliveryMethod"`
	Slot           *uint64 `json:"slot,omitempty"`
}

// TokenAccount is the on-chain state the delegation manager inspects.
type TokenAccount struct {
	Address         string `json:"address"`
	Owner           string `json:"owner"`
	Mint            string `json:"mint"`
	Amount          int64  `json:"amount"`
	Delegate        string `json:"delegate,omitempty"`
	DelegatedAmount int64  `json:"delegatedAmount"`
}

type Gateway interface {
	LatestBlockReference(ctx context.Context) (BlockReference, error)
	// PriorityFeeEstimate returns micro-units per compute unit for the given writable accounts.
	PriorityFeeEstimate(ctx context.Context, accounts []string) (uint64, error)
	SponsorshipInstructions(ctx context.Context, feePayer string) ([]Instruction, error)
	Submit(ctx context.Context, signedTx []byte) (SubmitResult, error)
	// Confirm polls up to maxAttempts. A timeout is reported as false, never as success.
	Confirm(ctx context.Context, signature string, maxAttempts int) (bool, error)
	TokenAccount(ctx context.Context, address string) (*TokenAccount, error)
}

type Signer interface {
	Address() string
	Sign(message []byte) []byte
}

func ValidateAddress(address string) error {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

func ValidateSignature(signature string) error {
	raw, err := base58.Decode(signature)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("%w: %q", ErrInvalidSignature, signature)
	}
	return nil
}

// TokenAccountAddress derives the canonical token account of owner for mint.
func TokenAccountAddress(owner, mint string) (string, error) {
	if err := ValidateAddress(owner); err != nil {
		return "", err
	}
	if err := ValidateAddress(mint); err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte("token-account:" + owner + ":" + mint))
	return base58.Encode(sum[:]), nil
}

// NetworkFee is what the fee payer spends: base fee per signature plus priority fee.
func NetworkFee(signatures int, computeUnits uint32, microPerUnit uint64) int64 {
	priority := int64((uint64(computeUnits) * microPerUnit) / 1_000_000)
	return BaseFeePerSignature*int64(signatures) + priority
}
