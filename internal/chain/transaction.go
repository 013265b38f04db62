package chain

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var ErrNotASigner = errors.New("chain: signer is not required by this transaction")

// Transaction is the engine's chain-neutral transaction. The fee payer's signature is the
// transaction id.
type Transaction struct {
	FeePayer     string            `json:"fee_payer"`
	RecentBlock  string            `json:"recent_block"`
	Instructions []Instruction     `json:"instructions"`
	Signatures   map[string]string `json:"signatures,omitempty"`
}

func NewTransaction(feePayer string, block BlockReference, ixs ...Instruction) *Transaction {
	return &Transaction{
		FeePayer:     feePayer,
		RecentBlock:  block.Hash,
		Instructions: ixs,
		Signatures:   map[string]string{},
	}
}

type message struct {
	FeePayer     string        `json:"fee_payer"`
	RecentBlock  string        `json:"recent_block"`
	Instructions []Instruction `json:"instructions"`
}

// Message returns the canonical bytes every signer signs.
func (t *Transaction) Message() ([]byte, error) {
	return json.Marshal(message{
		FeePayer:     t.FeePayer,
		RecentBlock:  t.RecentBlock,
		Instructions: t.Instructions,
	})
}

// RequiredSigners lists the fee payer first, then every signer account in instruction order.
func (t *Transaction) RequiredSigners() []string {
	seen := map[string]bool{t.FeePayer: true}
	signers := []string{t.FeePayer}
	for _, ix := range t.Instructions {
		for _, acc := range ix.Accounts {
			if acc.Signer && !seen[acc.Address] {
				seen[acc.Address] = true
				signers = append(signers, acc.Address)
			}
		}
	}
	return signers
}

func (t *Transaction) requires(address string) bool {
	for _, s := range t.RequiredSigners() {
		if s == address {
			return true
		}
	}
	return false
}

func (t *Transaction) Sign(signer Signer) error {
	if !t.requires(signer.Address()) {
		return fmt.Errorf("%w: %s", ErrNotASigner, signer.Address())
	}
	msg, err := t.Message()
	if err != nil {
		return fmt.Errorf("failed to build transaction message: %w", err)
	}
	if t.Signatures == nil {
		t.Signatures = map[string]string{}
	}
	t.Signatures[signer.Address()] = base58.Encode(signer.Sign(msg))
	return nil
}

func (t *Transaction) IsFullySigned() bool {
	for _, s := range t.RequiredSigners() {
		if t.Signatures[s] == "" {
			return false
		}
	}
	return true
}

// VerifySignatures checks that every required signer has produced a valid signature.
func (t *Transaction) VerifySignatures() error {
	msg, err := t.Message()
	if err != nil {
		return fmt.Errorf("failed to build transaction message: %w", err)
	}
	for _, addr := range t.RequiredSigners() {
		encoded := t.Signatures[addr]
		if encoded == "" {
			return fmt.Errorf("%w: missing signature for %s", ErrInvalidSignature, addr)
		}
		sig, err := base58.Decode(encoded)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		pub, err := base58.Decode(addr)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
			return fmt.Errorf("%w: bad signature for %s", ErrInvalidSignature, addr)
		}
	}
	return nil
}

// ID is the fee payer signature, empty until the fee payer has signed.
func (t *Transaction) ID() string {
	return t.Signatures[t.FeePayer]
}

func (t *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(t)
}

func (t *Transaction) Encode() (string, error) {
	raw, err := t.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func Decode(encoded string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid transaction encoding: %w", err)
	}
	return Deserialize(raw)
}

func Deserialize(raw []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("chain: invalid transaction: %w", err)
	}
	return &tx, nil
}
