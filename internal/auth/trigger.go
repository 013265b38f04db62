package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/transport"
)

// TriggerAuthenticator guards the scheduler endpoints with the shared cron secret.
// Callers send either the raw secret or an HS256 token signed with it as a bearer token.
type TriggerAuthenticator struct {
	secret []byte
	base   *transport.BaseHandler
	logger *slog.Logger
}

func NewTriggerAuthenticator(secret string, baseHandler *transport.BaseHandler, logger *slog.Logger) *TriggerAuthenticator {
	return &TriggerAuthenticator{secret: []byte(secret), base: baseHandler, logger: logger}
}

// IssueTriggerToken signs a short-lived scheduler token.
func IssueTriggerToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth: trigger secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   TriggerSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Validate accepts the raw secret or a valid scheduler token.
func (t *TriggerAuthenticator) Validate(bearer string) error {
	if bearer == "" || len(t.secret) == 0 {
		return errs.ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(bearer), t.secret) == 1 {
		return nil
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(bearer, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithSubject(TriggerSubject), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return errs.ErrTokenExpired
		}
		return errs.ErrInvalidToken
	}
	if !token.Valid {
		return errs.ErrInvalidToken
	}
	return nil
}

func (t *TriggerAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.Validate(transport.BearerToken(r)); err != nil {
			t.base.HandleError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
