package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/table-allocator/internal/application"
	"github.com/example/table-allocator/internal/lifecycle"
	"github.com/example/table-allocator/internal/logging"
)

var (
	errBadRequestBody    = errors.New("request body is not valid JSON")
	errInvalidBookingID  = errors.New("booking id is required")
	errInvalidHoldID     = errors.New("hold id is required")
	errMissingBookingRef = errors.New("booking_id is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps the application error taxonomy to status codes:
// validation 422, missing resources 404, lost races 409, lifecycle
// violations 409 with the stable code, everything else 500.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	kind := application.ErrorKind(err)
	if kind == "unexpected" {
		r.loggerFor(ctx).ErrorContext(ctx, "unhandled service error", "error_kind", kind, "error", err)
	} else {
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "error_kind", kind, "error", err)
	}

	var vErr *application.ValidationError
	var tErr *lifecycle.TransitionError

	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request failed validation",
			Errors:    vErr.FieldErrors,
		})
	case errors.As(err, &tErr):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: tErr.Code,
			Message:   tErr.Error(),
		})
	case errors.Is(err, application.ErrNotFound), errors.Is(err, application.ErrHoldNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: "the requested resource was not found"})
	case errors.Is(err, application.ErrHoldConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "HOLD_CONFLICT",
			Message:   "every candidate was taken by a concurrent hold, request a new quote",
		})
	case errors.Is(err, application.ErrAssignmentConflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "ASSIGNMENT_CONFLICT",
			Message:   "the hold could not be confirmed, request a new quote",
		})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
