package billing

import (
	"context"
	"errors"
	"net/http"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/internal/transport"
)

type ServiceAPI interface {
	RunDueCycle(ctx context.Context) (Summary, error)
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

// RunDueCycle is the scheduler trigger for recurring billing. The run outlives a caller
// that disconnects.
func (h *Handler) RunDueCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Service.RunDueCycle(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			h.HandleError(w, r, errs.ErrRunInProgress)
			return
		}
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}
