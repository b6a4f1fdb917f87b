/*
handlers.go - HTTP API handlers for medication stock tracking

PURPOSE:
  Exposes the stock engine via REST API. Handles HTTP request/response and
  JSON serialization, and delegates to stock.StockService and the scheduler.

ENDPOINTS:
  Users:
    POST   /api/users                           Create user
    GET    /api/users/{userID}                  Get user
    PUT    /api/users/{userID}/dose-times       Replace dose-time preferences

  Medications:
    GET    /api/users/{userID}/medications               List (with stats)
    POST   /api/users/{userID}/medications               Create
    GET    /api/users/{userID}/medications/{medID}       Get
    PUT    /api/users/{userID}/medications/{medID}       Partial update
    DELETE /api/users/{userID}/medications/{medID}       Delete (with history)
    POST   /api/users/{userID}/medications/{medID}/stock Manual stock action
    GET    /api/users/{userID}/medications/{medID}/history?limit=

  Admin:
    GET    /api/admin/scheduler                 Driver status and last tick
    POST   /api/admin/scheduler/run             Run one tick now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid amount, unknown action
  - 404: User or medication not found
  - 409: Concurrent modification, tick already running
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The user id in the path selects the data.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/oliverbenduhn/tabletto/scheduler"
	"github.com/oliverbenduhn/tabletto/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// SchedulerControl is what the admin endpoints need from the driver.
type SchedulerControl interface {
	Status() scheduler.Status
	RunNow(ctx context.Context) (scheduler.TickResult, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *stock.StockService
	Scheduler SchedulerControl
	Clock     stock.Clock
	Location  *time.Location
	Logger    *zap.Logger
}

func NewHandler(service *stock.StockService, sched SchedulerControl, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:   service,
		Scheduler: sched,
		Clock:     service.Clock,
		Location:  service.Location,
		Logger:    logger,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Service.CreateUser(r.Context(), req.Email, req.DoseTimes.toDomain())
	if err != nil {
		h.writeDomainError(w, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.GetUser(r.Context(), userID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) UpdateDoseTimes(w http.ResponseWriter, r *http.Request) {
	var req DoseTimesDTO
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Service.UpdateDoseTimes(r.Context(), userID(r), req.toDomain())
	if err != nil {
		h.writeDomainError(w, "Failed to update dose times", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// =============================================================================
// MEDICATION HANDLERS
// =============================================================================

func (h *Handler) ListMedications(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if _, err := h.Service.GetUser(r.Context(), uid); err != nil {
		h.writeDomainError(w, "Failed to list medications", err)
		return
	}
	meds, err := h.Service.ListMedications(r.Context(), uid)
	if err != nil {
		h.writeDomainError(w, "Failed to list medications", err)
		return
	}
	now := h.Clock.Now()
	dtos := make([]MedicationDTO, len(meds))
	for i, m := range meds {
		dtos[i] = toMedicationDTO(m, now, h.Location)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateMedication(w http.ResponseWriter, r *http.Request) {
	var req CreateMedicationRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.Service.CreateMedication(r.Context(), userID(r), req.toInput())
	if err != nil {
		h.writeDomainError(w, "Failed to create medication", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMedicationDTO(*m, h.Clock.Now(), h.Location))
}

func (h *Handler) GetMedication(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.GetMedication(r.Context(), userID(r), medicationID(r))
	if err != nil {
		h.writeDomainError(w, "Failed to get medication", err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(*m, h.Clock.Now(), h.Location))
}

func (h *Handler) UpdateMedication(w http.ResponseWriter, r *http.Request) {
	var req UpdateMedicationRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := h.Service.UpdateMedication(r.Context(), userID(r), medicationID(r), req.toPatch())
	if err != nil {
		h.writeDomainError(w, "Failed to update medication", err)
		return
	}
	writeJSON(w, http.StatusOK, toMedicationDTO(*m, h.Clock.Now(), h.Location))
}

func (h *Handler) DeleteMedication(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteMedication(r.Context(), userID(r), medicationID(r)); err != nil {
		h.writeDomainError(w, "Failed to delete medication", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StockAction applies add_package or set_stock.
func (h *Handler) StockAction(w http.ResponseWriter, r *http.Request) {
	var req StockActionRequest
	if !decode(w, r, &req) {
		return
	}
	applied, err := h.Service.StockAction(r.Context(), userID(r), medicationID(r), stock.Action(req.Action), req.Amount)
	if err != nil {
		h.writeDomainError(w, "Failed to update stock", err)
		return
	}
	writeJSON(w, http.StatusOK, StockActionResponse{
		Medication: toMedicationDTO(applied.Medication, h.Clock.Now(), h.Location),
		History:    toHistoryDTOs(applied.Entries),
	})
}

// GetHistory returns the newest entries; ?limit= defaults to 50, max 200.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}
	entries, err := h.Service.History(r.Context(), userID(r), medicationID(r), limit)
	if err != nil {
		h.writeDomainError(w, "Failed to load history", err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryDTOs(entries))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

// RunScheduler runs one tick synchronously and returns its counts.
func (h *Handler) RunScheduler(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to run scheduler", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// HELPERS
// =============================================================================

func userID(r *http.Request) stock.UserID {
	return stock.UserID(chi.URLParam(r, "userID"))
}

func medicationID(r *http.Request) stock.MedicationID {
	return stock.MedicationID(chi.URLParam(r, "medID"))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps stock and scheduler errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case stock.IsClientError(err):
		resp := ErrorResponse{Error: message, Details: err.Error()}
		var verrs stock.ValidationErrors
		var verr *stock.ValidationError
		switch {
		case errors.As(err, &verrs):
			resp.Fields = make(map[string]string, len(verrs))
			for _, v := range verrs {
				resp.Fields[v.Field] = v.Message
			}
		case errors.As(err, &verr):
			resp.Fields = map[string]string{verr.Field: verr.Message}
		}
		writeJSON(w, http.StatusBadRequest, resp)
	case stock.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, stock.ErrConcurrentModification), errors.Is(err, scheduler.ErrTickInProgress):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, nil)
	}
}
