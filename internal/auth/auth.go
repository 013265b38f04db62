package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	"golang.org/x/crypto/bcrypt"
)

const (
	// HeaderAPIKey carries the merchant credential on every merchant request.
	HeaderAPIKey = "X-API-Key"

	// TriggerSubject is the subject claim of scheduler trigger tokens.
	TriggerSubject = "scheduler"

	keyIDBytes  = 12
	secretBytes = 32
)

var (
	ErrMalformedKey = errors.New("auth: malformed api key")
	ErrKeyMismatch  = errors.New("auth: api key does not match")
)

// OrganizationSource resolves an organization by the public part of its api key.
type OrganizationSource interface {
	GetByAPIKeyID(ctx context.Context, keyID string) (*orgdm.Organization, error)
}

// GenerateAPIKey returns a fresh key id, its secret, and the full key handed to the merchant.
func GenerateAPIKey() (keyID, secret, full string, err error) {
	id := make([]byte, keyIDBytes)
	if _, err = rand.Read(id); err != nil {
		return "", "", "", err
	}
	sec := make([]byte, secretBytes)
	if _, err = rand.Read(sec); err != nil {
		return "", "", "", err
	}
	keyID = "rk_" + hex.EncodeToString(id)
	secret = hex.EncodeToString(sec)
	return keyID, secret, keyID + "." + secret, nil
}

// HashSecret creates the bcrypt hash stored for an api key secret.
func HashSecret(secret string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SplitAPIKey separates "<keyID>.<secret>".
func SplitAPIKey(key string) (keyID, secret string, err error) {
	keyID, secret, ok := strings.Cut(strings.TrimSpace(key), ".")
	if !ok || keyID == "" || secret == "" {
		return "", "", ErrMalformedKey
	}
	return keyID, secret, nil
}
