package subscription

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	errs "github.com/frahmantamala/recurpay/internal"
	subdm "github.com/frahmantamala/recurpay/internal/core/datamodel/subscription"
	"github.com/frahmantamala/recurpay/internal/delegation"
	"github.com/frahmantamala/recurpay/internal/settlement"
	"github.com/frahmantamala/recurpay/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, organizationID, id string) (*subdm.Subscription, error)
	Create(ctx context.Context, organizationID string, req CreateSubscriptionDTO) (*subdm.Subscription, *delegation.Allowance, error)
	ApprovalTransaction(ctx context.Context, organizationID, id string) (*delegation.Allowance, error)
	Activate(ctx context.Context, organizationID, id string, req ActivateDTO) (*subdm.Subscription, settlement.Result, error)
	Cancel(ctx context.Context, organizationID, id string) (*subdm.Subscription, string, error)
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

func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := errs.OrganizationIDFromContext(r.Context())

	var dto CreateSubscriptionDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	sub, allowance, err := h.Service.Create(r.Context(), orgID, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, CreateResponse{
		Subscription: ToResponse(sub),
		Allowance:    allowance,
	})
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Service.Get(r.Context(), errs.OrganizationIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, ToResponse(sub))
}

func (h *Handler) GetApproval(w http.ResponseWriter, r *http.Request) {
	allowance, err := h.Service.ApprovalTransaction(r.Context(), errs.OrganizationIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, allowance)
}

func (h *Handler) ActivateSubscription(w http.ResponseWriter, r *http.Request) {
	var dto ActivateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	sub, result, err := h.Service.Activate(r.Context(), errs.OrganizationIDFromContext(r.Context()), chi.URLParam(r, "id"), dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ActivateResponse{
		Subscription:   ToResponse(sub),
		PaymentID:      result.PaymentID,
		TxSignature:    result.TxSignature,
		DeliveryMethod: result.DeliveryMethod,
	})
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	sub, revocation, err := h.Service.Cancel(r.Context(), errs.OrganizationIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, CancelResponse{
		Subscription:          ToResponse(sub),
		RevocationTransaction: revocation,
	})
}
