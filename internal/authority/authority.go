// Package authority holds the backend signing key. It is loaded once at startup
// and passed explicitly to everything that signs as delegate or fee payer.
package authority

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
)

var ErrNoKey = errors.New("authority: no secret key or keypair path configured")

type Authority struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

func New(priv ed25519.PrivateKey) (*Authority, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("authority: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("authority: unexpected public key type")
	}
	return &Authority{
		priv:    priv,
		pub:     pub,
		address: base58.Encode(pub),
	}, nil
}

// Generate creates a fresh keypair.
func Generate() (*Authority, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate authority key: %w", err)
	}
	return New(priv)
}

// FromBase58 decodes a base58 64-byte secret key.
func FromBase58(secret string) (*Authority, error) {
	raw, err := base58.Decode(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("authority: invalid base58 secret: %w", err)
	}
	return New(ed25519.PrivateKey(raw))
}

// FromKeypairJSON decodes the JSON byte-array keypair format produced by wallet CLIs.
func FromKeypairJSON(data []byte) (*Authority, error) {
	var raw []byte
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, fmt.Errorf("authority: invalid keypair file: %w", err)
	}
	raw = make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("authority: keypair byte %d out of range", i)
		}
		raw[i] = byte(v)
	}
	return New(ed25519.PrivateKey(raw))
}

// Load prefers an inline secret and falls back to a keypair file.
func Load(secret, keypairPath string) (*Authority, error) {
	if secret != "" {
		return FromBase58(secret)
	}
	if keypairPath == "" {
		return nil, ErrNoKey
	}
	data, err := os.ReadFile(keypairPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}
	return FromKeypairJSON(data)
}

func (a *Authority) Address() string {
	return a.address
}

func (a *Authority) PublicKey() ed25519.PublicKey {
	return a.pub
}

func (a *Authority) Sign(message []byte) []byte {
	return ed25519.Sign(a.priv, message)
}

// SecretBase58 exports the secret key, used by the keygen command only.
func (a *Authority) SecretBase58() string {
	return base58.Encode(a.priv)
}

// Verify checks an ed25519 signature against a base58 address.
func Verify(address string, message, signature []byte) bool {
	pub, err := base58.Decode(address)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature)
}
