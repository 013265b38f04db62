package session

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errs "github.com/frahmantamala/recurpay/internal"
	sessiondm "github.com/frahmantamala/recurpay/internal/core/datamodel/session"
	settledm "github.com/frahmantamala/recurpay/internal/core/datamodel/settlement"
	"github.com/frahmantamala/recurpay/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, organizationID, id string) (*sessiondm.PaymentSession, error)
	Create(ctx context.Context, organizationID string, req CreateSessionDTO) (*sessiondm.PaymentSession, error)
	Confirm(ctx context.Context, organizationID, id string, req ConfirmSessionDTO) (*sessiondm.PaymentSession, *settledm.Payment, error)
	ExpireStale(ctx context.Context) (int64, error)
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

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var dto CreateSessionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	sess, err := h.Service.Create(r.Context(), errs.OrganizationIDFromContext(r.Context()), dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, ToResponse(sess))
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Service.Get(r.Context(), errs.OrganizationIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToResponse(sess))
}

func (h *Handler) ConfirmSession(w http.ResponseWriter, r *http.Request) {
	var dto ConfirmSessionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	sess, payment, err := h.Service.Confirm(r.Context(), errs.OrganizationIDFromContext(r.Context()), chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ConfirmResponse{
		Session:   ToResponse(sess),
		PaymentID: payment.ID,
	})
}

// ExpireSessions is the scheduler trigger that closes pending sessions past their TTL.
func (h *Handler) ExpireSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.ExpireStale(context.WithoutCancel(r.Context()))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ExpireResponse{Expired: n})
}
