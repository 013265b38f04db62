// Package webhook queues merchant notifications and delivers them with an HMAC signature,
// bounded retries and dead-lettering.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	webhookdm "github.com/frahmantamala/recurpay/internal/core/datamodel/webhook"
)

const (
	MaxAttempts      = 5
	DefaultTimeout   = 10 * time.Second
	DefaultBatchSize = 50
	maxResponseBody  = 1000
	baseBackoff      = time.Minute
	maxBackoff       = time.Hour

	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
	userAgent       = "recurpay-webhooks/1.0"
)

var (
	ErrNotFound        = errors.New("webhook not found")
	ErrMissingEndpoint = errors.New("organization has no webhook url")
)

// Envelope is the JSON body POSTed to merchant endpoints.
type Envelope struct {
	Event     string                 `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type Attempt struct {
	StatusCode *int
	Body       string
	At         time.Time
}

type RepositoryAPI interface {
	Create(ctx context.Context, w *webhookdm.Webhook) error
	GetByID(ctx context.Context, id string) (*webhookdm.Webhook, error)
	// FindDeliverable returns pending or retryable rows whose next attempt is due, oldest first.
	FindDeliverable(ctx context.Context, now time.Time, limit int) ([]*webhookdm.Webhook, error)
	MarkSent(ctx context.Context, id string, a Attempt) error
	MarkFailed(ctx context.Context, id string, a Attempt, nextAttemptAt time.Time) error
	DeadLetter(ctx context.Context, id, reason string, at time.Time) error
}

type OrganizationSource interface {
	GetOrganization(ctx context.Context, id string) (*orgdm.Organization, error)
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a hex signature in constant time.
func Verify(payload []byte, secret, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// Backoff is the wait before the next attempt after the n-th failure: one minute doubling
// per failure, capped at an hour.
func Backoff(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := baseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// truncate returns a prefix of a response body that a postgres TEXT column accepts.
func truncate(s string) string {
	s = strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "\uFFFD")
	if len(s) <= maxResponseBody {
		return s
	}
	n := maxResponseBody
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
