package revenue

import (
	"context"
	"net/http"
	"time"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/transport"
)

type ServiceAPI interface {
	Summary(ctx context.Context, organizationID string, from, to time.Time) (*Summary, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// GetSummary serves GET /revenue/summary?from=&to= with RFC 3339 bounds.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	from, err := parseTime(r, "from")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	to, err := parseTime(r, "to")
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	summary, err := h.Service.Summary(r.Context(), errs.OrganizationIDFromContext(r.Context()), from, to)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}

func parseTime(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errs.NewValidationFieldError(name, name+" must be an RFC 3339 timestamp", errs.ErrCodeValidationFailed)
	}
	return t, nil
}
