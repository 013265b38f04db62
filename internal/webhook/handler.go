package webhook

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	errs "github.com/frahmantamala/recurpay/internal"
	webhookdm "github.com/frahmantamala/recurpay/internal/core/datamodel/webhook"
	"github.com/frahmantamala/recurpay/internal/transport"
)

type ServiceAPI interface {
	SendTest(ctx context.Context, organizationID string) (*webhookdm.Webhook, bool, error)
	Sweep(ctx context.Context, batchSize int) (SweepSummary, error)
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

type TestResponse struct {
	WebhookID      string           `json:"webhook_id"`
	Delivered      bool             `json:"delivered"`
	Status         webhookdm.Status `json:"status"`
	ResponseStatus *int             `json:"response_status,omitempty"`
}

func (h *Handler) SendTest(w http.ResponseWriter, r *http.Request) {
	hook, delivered, err := h.Service.SendTest(r.Context(), errs.OrganizationIDFromContext(r.Context()))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, TestResponse{
		WebhookID:      hook.ID,
		Delivered:      delivered,
		Status:         hook.Status,
		ResponseStatus: hook.ResponseStatus,
	})
}

// Sweep is the scheduler trigger for webhook delivery.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	batchSize := 0
	if v := r.URL.Query().Get("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			h.HandleError(w, r, errs.NewValidationFieldError("batch_size", "batch_size must be between 1 and 500", errs.ErrCodeValidationFailed))
			return
		}
		batchSize = n
	}

	summary, err := h.Service.Sweep(context.WithoutCancel(r.Context()), batchSize)
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			h.HandleError(w, r, errs.ErrRunInProgress)
			return
		}
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}
