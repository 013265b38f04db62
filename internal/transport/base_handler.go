package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	errs "github.com/frahmantamala/recurpay/internal"
	"github.com/frahmantamala/recurpay/pkg/logger"
)

const maxBodyBytes = 1 << 20

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// HandleError maps an AppError to its status and body. Anything else is a 500 with a
// generic message; the cause is only logged.
func (h *BaseHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromOr(r.Context(), h.Logger)

	if appErr, ok := errs.IsAppError(err); ok {
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error("request failed", "error", err, "path", r.URL.Path)
		} else {
			log.Warn("request rejected", "error", appErr.GetDetailedMessage(), "path", r.URL.Path, "code", appErr.Code)
		}
		status, body := appErr.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}

	log.Error("unhandled error", "error", err, "path", r.URL.Path)
	internalErr := errs.NewInternalError("internal server error", err)
	status, body := internalErr.ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// DecodeJSON decodes a bounded request body into dst.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.NewValidationError("request body is required", errs.ErrCodeValidationFailed)
		}
		return errs.NewValidationError("invalid request body", errs.ErrCodeValidationFailed).WithCause(err)
	}
	return nil
}

// BearerToken extracts the token from a "Bearer" Authorization header.
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ""
	}
	return authHeader[7:]
}
