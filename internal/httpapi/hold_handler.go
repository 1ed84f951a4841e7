package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/table-allocator/internal/application"
	"github.com/example/table-allocator/internal/persistence"
)

type holdService interface {
	ConfirmHold(ctx context.Context, params application.ConfirmParams) (application.ConfirmResult, error)
	ReleaseHold(ctx context.Context, holdID, bookingID string) error
	SweepUntilDrained(ctx context.Context, limit int, pause time.Duration) (int, error)
}

// HoldHandler serves confirmation, release, and the admin sweep endpoint.
type HoldHandler struct {
	service   holdService
	responder responder
}

// NewHoldHandler wires the handler with its service and logger.
func NewHoldHandler(service holdService, logger *slog.Logger) *HoldHandler {
	return &HoldHandler{service: service, responder: newResponder(logger)}
}

type confirmRequest struct {
	BookingID string `json:"booking_id"`
}

type confirmResponse struct {
	Assignments []assignmentDTO `json:"assignments"`
	Replayed    bool            `json:"replayed"`
}

type assignmentDTO struct {
	ID        string    `json:"id"`
	BookingID string    `json:"booking_id"`
	TableID   string    `json:"table_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

// Confirm converts a hold into durable assignments. The Idempotency-Key
// header makes retried requests replay the original result.
func (h *HoldHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	holdID, ok := HoldIDFromContext(r.Context())
	if !ok || strings.TrimSpace(holdID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidHoldID)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingBookingRef)
		return
	}

	result, err := h.service.ConfirmHold(r.Context(), application.ConfirmParams{
		HoldID:         holdID,
		BookingID:      req.BookingID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toConfirmResponse(result))
}

// Release deletes a hold before its TTL expires. The optional booking_id
// query parameter guards against releasing someone else's hold.
func (h *HoldHandler) Release(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	holdID, ok := HoldIDFromContext(r.Context())
	if !ok || strings.TrimSpace(holdID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidHoldID)
		return
	}

	bookingID := strings.TrimSpace(r.URL.Query().Get("booking_id"))
	if err := h.service.ReleaseHold(r.Context(), holdID, bookingID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type sweepResponse struct {
	Removed int `json:"removed"`
}

// SweepHolds drains expired holds immediately instead of waiting for the
// scheduled sweep.
func (h *HoldHandler) SweepHolds(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	logger := handlerLogger(r.Context(), h.responder.logger, "hold", "sweep")

	removed, err := h.service.SweepUntilDrained(r.Context(), 100, 0)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "manual hold sweep completed", "removed", removed)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sweepResponse{Removed: removed})
}

func toConfirmResponse(result application.ConfirmResult) confirmResponse {
	resp := confirmResponse{
		Assignments: make([]assignmentDTO, 0, len(result.Assignments)),
		Replayed:    result.Replayed,
	}
	for _, a := range result.Assignments {
		resp.Assignments = append(resp.Assignments, toAssignmentDTO(a))
	}
	return resp
}

func toAssignmentDTO(a persistence.Assignment) assignmentDTO {
	return assignmentDTO{
		ID:        a.ID,
		BookingID: a.BookingID,
		TableID:   a.TableID,
		Start:     a.Start,
		End:       a.End,
	}
}
