package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	errs "github.com/frahmantamala/recurpay/internal"
	orgdm "github.com/frahmantamala/recurpay/internal/core/datamodel/organization"
	"github.com/frahmantamala/recurpay/internal/transport"
	"github.com/frahmantamala/recurpay/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyAuthenticator resolves merchant requests to their organization.
type APIKeyAuthenticator struct {
	orgs   OrganizationSource
	base   *transport.BaseHandler
	logger *slog.Logger
}

func NewAPIKeyAuthenticator(orgs OrganizationSource, baseHandler *transport.BaseHandler, logger *slog.Logger) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{orgs: orgs, base: baseHandler, logger: logger}
}

// Authenticate verifies key against the stored bcrypt hash of its organization.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, key string) (*orgdm.Organization, error) {
	keyID, secret, err := SplitAPIKey(key)
	if err != nil {
		return nil, errs.ErrInvalidAPIKey
	}

	org, err := a.orgs.GetByAPIKeyID(ctx, keyID)
	if err != nil {
		if errors.Is(err, errs.ErrOrganizationNotFound) {
			return nil, errs.ErrInvalidAPIKey
		}
		a.logger.Error("failed to resolve api key", "error", err, "key_id", keyID)
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(org.APIKeyHash), []byte(secret)); err != nil {
		a.logger.Warn("api key secret mismatch", "key_id", keyID)
		return nil, errs.ErrInvalidAPIKey.WithCause(ErrKeyMismatch)
	}
	return org, nil
}

// Middleware rejects requests without a valid X-API-Key and scopes the rest to the organization.
func (a *APIKeyAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAPIKey)
		if key == "" {
			a.base.HandleError(w, r, errs.NewUnauthorizedError("missing api key", errs.ErrCodeInvalidAPIKey))
			return
		}

		org, err := a.Authenticate(r.Context(), key)
		if err != nil {
			a.base.HandleError(w, r, err)
			return
		}

		ctx := errs.ContextWithOrganizationID(r.Context(), org.ID)
		ctx = logger.With(ctx, "organization_id", org.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
