package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/table-allocator/internal/adjacency"
	"github.com/example/table-allocator/internal/allocation"
	"github.com/example/table-allocator/internal/application"
	"github.com/example/table-allocator/internal/persistence"
	"github.com/example/table-allocator/internal/policy"
)

type allocationService interface {
	Quote(ctx context.Context, params application.QuoteParams) (application.QuoteResult, error)
	ManualContext(ctx context.Context, bookingID string) (application.ManualContext, error)
	ValidateManualSelection(ctx context.Context, params application.ManualSelectionParams) error
	HoldManualSelection(ctx context.Context, params application.ManualSelectionParams) (persistence.Hold, error)
}

// AllocationHandler serves the quote and manual assignment endpoints.
type AllocationHandler struct {
	service   allocationService
	responder responder
}

// NewAllocationHandler wires the handler with its service and logger.
func NewAllocationHandler(service allocationService, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{service: service, responder: newResponder(logger)}
}

type quoteRequest struct {
	BookingID           string `json:"booking_id"`
	HoldTTLMinutes      int    `json:"hold_ttl_minutes,omitempty"`
	MaxTables           int    `json:"max_tables,omitempty"`
	DisableCombinations bool   `json:"disable_combinations,omitempty"`
	RequireAdjacency    bool   `json:"require_adjacency,omitempty"`
	AdjacencyMode       string `json:"adjacency_mode,omitempty"`
	CreatedBy           string `json:"created_by,omitempty"`
}

type quoteResponse struct {
	Accepted    bool           `json:"accepted"`
	Reason      string         `json:"reason,omitempty"`
	Hold        *holdDTO       `json:"hold,omitempty"`
	Candidate   *planDTO       `json:"candidate,omitempty"`
	Alternates  []planDTO      `json:"alternates,omitempty"`
	Window      *windowDTO     `json:"window,omitempty"`
	Diagnostics diagnosticsDTO `json:"diagnostics"`
}

type holdDTO struct {
	ID        string            `json:"id"`
	BookingID string            `json:"booking_id"`
	TableIDs  []string          `json:"table_ids"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedBy string            `json:"created_by,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type planDTO struct {
	TableIDs     []string `json:"table_ids"`
	TableNumbers []string `json:"table_numbers"`
	Capacity     int      `json:"capacity"`
	Slack        int      `json:"slack"`
	Adjacency    string   `json:"adjacency,omitempty"`
	Score        float64  `json:"score"`
}

type windowDTO struct {
	DiningStart   time.Time `json:"dining_start"`
	DiningEnd     time.Time `json:"dining_end"`
	ServiceKey    string    `json:"service_key"`
	BufferMinutes int       `json:"buffer_minutes"`
}

type diagnosticsDTO struct {
	CombinationsEvaluated int            `json:"combinations_evaluated"`
	Skipped               map[string]int `json:"skipped,omitempty"`
}

// Quote computes candidate plans for a booking and holds the best one.
func (h *AllocationHandler) Quote(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingBookingRef)
		return
	}

	result, err := h.service.Quote(r.Context(), application.QuoteParams{
		BookingID:           req.BookingID,
		HoldTTL:             time.Duration(req.HoldTTLMinutes) * time.Minute,
		MaxTables:           req.MaxTables,
		DisableCombinations: req.DisableCombinations,
		RequireAdjacency:    req.RequireAdjacency,
		AdjacencyMode:       adjacency.Mode(req.AdjacencyMode),
		CreatedBy:           req.CreatedBy,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toQuoteResponse(result))
}

// ManualContext returns the read model for the staff assignment screen.
func (h *AllocationHandler) ManualContext(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	bookingID, ok := BookingIDFromContext(r.Context())
	if !ok || strings.TrimSpace(bookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidBookingID)
		return
	}

	view, err := h.service.ManualContext(r.Context(), bookingID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toManualContextResponse(view))
}

type manualSelectionRequest struct {
	BookingID      string   `json:"booking_id"`
	TableIDs       []string `json:"table_ids"`
	AdjacencyMode  string   `json:"adjacency_mode,omitempty"`
	HoldTTLMinutes int      `json:"hold_ttl_minutes,omitempty"`
	CreatedBy      string   `json:"created_by,omitempty"`
}

func (req manualSelectionRequest) toParams() application.ManualSelectionParams {
	return application.ManualSelectionParams{
		BookingID:     req.BookingID,
		TableIDs:      req.TableIDs,
		AdjacencyMode: adjacency.Mode(req.AdjacencyMode),
		HoldTTL:       time.Duration(req.HoldTTLMinutes) * time.Minute,
		CreatedBy:     req.CreatedBy,
	}
}

// ValidateManual dry-runs a staff table selection.
func (h *AllocationHandler) ValidateManual(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req manualSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingBookingRef)
		return
	}

	if err := h.service.ValidateManualSelection(r.Context(), req.toParams()); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// HoldManual validates and holds a staff table selection.
func (h *AllocationHandler) HoldManual(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req manualSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingBookingRef)
		return
	}

	hold, err := h.service.HoldManualSelection(r.Context(), req.toParams())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dto := toHoldDTO(hold)
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, &dto)
}

func toQuoteResponse(result application.QuoteResult) quoteResponse {
	resp := quoteResponse{
		Accepted: result.Accepted(),
		Reason:   result.Reason,
		Diagnostics: diagnosticsDTO{
			CombinationsEvaluated: result.Diagnostics.CombinationsEvaluated,
			Skipped:               result.Diagnostics.Skipped,
		},
	}
	if !result.Window.DiningStart.IsZero() {
		resp.Window = toWindowDTO(result.Window)
	}
	if result.Hold != nil {
		dto := toHoldDTO(*result.Hold)
		resp.Hold = &dto
	}
	if result.Candidate != nil {
		dto := toPlanDTO(*result.Candidate)
		resp.Candidate = &dto
	}
	for _, plan := range result.Alternates {
		resp.Alternates = append(resp.Alternates, toPlanDTO(plan))
	}
	return resp
}

func toHoldDTO(hold persistence.Hold) holdDTO {
	return holdDTO{
		ID:        hold.ID,
		BookingID: hold.BookingID,
		TableIDs:  hold.TableIDs,
		Start:     hold.Start,
		End:       hold.End,
		ExpiresAt: hold.ExpiresAt,
		CreatedBy: hold.CreatedBy,
		Metadata:  hold.Metadata,
	}
}

func toPlanDTO(plan allocation.CandidatePlan) planDTO {
	return planDTO{
		TableIDs:     plan.TableIDs,
		TableNumbers: plan.TableNumbers,
		Capacity:     plan.Capacity,
		Slack:        plan.Slack,
		Adjacency:    plan.AdjacencyLabel,
		Score:        plan.Score,
	}
}

func toWindowDTO(window policy.BookingWindow) *windowDTO {
	return &windowDTO{
		DiningStart:   window.DiningStart,
		DiningEnd:     window.DiningEnd,
		ServiceKey:    window.ServiceKey,
		BufferMinutes: int(window.BufferEnd.Sub(window.DiningEnd) / time.Minute),
	}
}

type manualContextResponse struct {
	Booking   bookingDTO    `json:"booking"`
	Window    *windowDTO    `json:"window"`
	Tables    []tableDTO    `json:"tables"`
	Zones     []zoneDTO     `json:"zones"`
	Conflicts []conflictDTO `json:"conflicts"`
}

type bookingDTO struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	PartySize    int       `json:"party_size"`
	Start        time.Time `json:"start"`
	Status       string    `json:"status"`
}

type tableDTO struct {
	ID       string `json:"id"`
	ZoneID   string `json:"zone_id"`
	Number   string `json:"number"`
	Capacity int    `json:"capacity"`
	Status   string `json:"status"`
	Active   bool   `json:"active"`
}

type zoneDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type conflictDTO struct {
	TableID   string    `json:"table_id"`
	BookingID string    `json:"booking_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Source    string    `json:"source"`
}

func toManualContextResponse(view application.ManualContext) manualContextResponse {
	resp := manualContextResponse{
		Booking: bookingDTO{
			ID:           view.Booking.ID,
			RestaurantID: view.Booking.RestaurantID,
			PartySize:    view.Booking.PartySize,
			Start:        view.Booking.Start,
			Status:       view.Booking.Status,
		},
		Window:    toWindowDTO(view.Window),
		Tables:    make([]tableDTO, 0, len(view.Tables)),
		Zones:     make([]zoneDTO, 0, len(view.Zones)),
		Conflicts: make([]conflictDTO, 0, len(view.Conflicts)),
	}
	for _, table := range view.Tables {
		resp.Tables = append(resp.Tables, tableDTO{
			ID:       table.ID,
			ZoneID:   table.ZoneID,
			Number:   table.Number,
			Capacity: table.Capacity,
			Status:   string(table.Status),
			Active:   table.Active,
		})
	}
	for _, zone := range view.Zones {
		resp.Zones = append(resp.Zones, zoneDTO{ID: zone.ID, Name: zone.Name})
	}
	for _, conflict := range view.Conflicts {
		resp.Conflicts = append(resp.Conflicts, conflictDTO{
			TableID:   conflict.TableID,
			BookingID: conflict.BookingID,
			Start:     conflict.Start,
			End:       conflict.End,
			Source:    conflict.Source,
		})
	}
	return resp
}
