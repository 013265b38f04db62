// Package chaintest provides an in-memory chain.Gateway for tests.
package chaintest

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/frahmantamala/recurpay/internal/chain"
)

var ErrSubmitRejected = errors.New("chaintest: submit rejected")

type Gateway struct {
	mu sync.Mutex

	Block       chain.BlockReference
	PriorityFee uint64
	Sponsorship []chain.Instruction

	// FailSubmits rejects the next n submissions.
	FailSubmits int
	// DropConfirmations makes every Confirm time out.
	DropConfirmations bool

	accounts  map[string]*chain.TokenAccount
	landed    map[string]bool
	submitted []*chain.Transaction
	confirms  int
}

func New() *Gateway {
	return &Gateway{
		Block:       chain.BlockReference{Hash: RandomAddress(), LastValidBlockHeight: 1000},
		PriorityFee: 10_000,
		accounts:    map[string]*chain.TokenAccount{},
		landed:      map[string]bool{},
	}
}

// RandomAddress returns a valid random 32-byte base58 address.
func RandomAddress() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base58.Encode(b)
}

// RandomSignature returns a valid random 64-byte base58 signature.
func RandomSignature() string {
	b := make([]byte, 64)
	_, _ = rand.Read(b)
	return base58.Encode(b)
}

// Delegate creates owner's token account for mint with a delegation to delegate.
func (g *Gateway) Delegate(owner, mint, delegate string, balance, allowance int64) string {
	addr, err := chain.TokenAccountAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.accounts[addr] = &chain.TokenAccount{
		Address:         addr,
		Owner:           owner,
		Mint:            mint,
		Amount:          balance,
		Delegate:        delegate,
		DelegatedAmount: allowance,
	}
	return addr
}

func (g *Gateway) Account(address string) *chain.TokenAccount {
	g.mu.Lock()
	defer g.mu.Unlock()
	acc, ok := g.accounts[address]
	if !ok {
		return nil
	}
	cp := *acc
	return &cp
}

// Land marks an externally submitted signature as confirmed.
func (g *Gateway) Land(signature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.landed[signature] = true
}

func (g *Gateway) Submitted() []*chain.Transaction {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*chain.Transaction(nil), g.submitted...)
}

func (g *Gateway) ConfirmCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirms
}

func (g *Gateway) LatestBlockReference(context.Context) (chain.BlockReference, error) {
	return g.Block, nil
}

func (g *Gateway) PriorityFeeEstimate(context.Context, []string) (uint64, error) {
	return g.PriorityFee, nil
}

func (g *Gateway) SponsorshipInstructions(context.Context, string) ([]chain.Instruction, error) {
	return g.Sponsorship, nil
}

func (g *Gateway) Submit(_ context.Context, signedTx []byte) (chain.SubmitResult, error) {
	tx, err := chain.Deserialize(signedTx)
	if err != nil {
		return chain.SubmitResult{}, err
	}
	if err := tx.VerifySignatures(); err != nil {
		return chain.SubmitResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.FailSubmits > 0 {
		g.FailSubmits--
		return chain.SubmitResult{}, ErrSubmitRejected
	}

	for _, ix := range chain.Transfers(tx.Instructions) {
		source, authority := ix.Accounts[0].Address, ix.Accounts[3].Address
		acc, ok := g.accounts[source]
		if !ok {
			continue
		}
		if acc.Amount < ix.Amount {
			return chain.SubmitResult{}, fmt.Errorf("%w: insufficient funds", chain.ErrTransactionError)
		}
		if authority != acc.Owner {
			if acc.Delegate != authority || acc.DelegatedAmount < ix.Amount {
				return chain.SubmitResult{}, fmt.Errorf("%w: delegate allowance exceeded", chain.ErrTransactionError)
			}
			acc.DelegatedAmount -= ix.Amount
		}
		acc.Amount -= ix.Amount
	}

	g.submitted = append(g.submitted, tx)
	g.landed[tx.ID()] = true
	slot := uint64(len(g.submitted))
	return chain.SubmitResult{Signature: tx.ID(), DeliveryMethod: "rpc", Slot: &slot}, nil
}

func (g *Gateway) Confirm(_ context.Context, signature string, _ int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirms++
	if g.DropConfirmations {
		return false, nil
	}
	return g.landed[signature], nil
}

func (g *Gateway) TokenAccount(_ context.Context, address string) (*chain.TokenAccount, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	acc, ok := g.accounts[address]
	if !ok {
		return nil, chain.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}
