package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caresignal/internal/correlation"
	"caresignal/internal/platform/middleware"
)

// Service defines the correlation operations the HTTP layer needs.
type Service interface {
	Run(ctx context.Context, subjectID string, windowHours int) (*correlation.EvaluationResult, error)
}

// EventReader exposes the read side for audit/review tooling.
type EventReader interface {
	ListBySubject(ctx context.Context, subjectID string) ([]correlation.CompoundEvent, error)
	ListContributions(ctx context.Context, eventID uuid.UUID) ([]correlation.SignalContribution, error)
}

// Handler is the thin HTTP layer over the correlation engine. Transport
// concerns only; evaluation semantics live in the service.
type Handler struct {
	service   Service
	events    EventReader
	logger    *slog.Logger
	validator middleware.TokenValidator
}

func New(service Service, events EventReader, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		service:   service,
		events:    events,
		logger:    logger,
		validator: validator,
	}
}

// Register mounts the correlation routes with the shared middleware chain.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.RequireAuth(h.validator, h.logger))

	router.Post("/v1/subjects/{subjectID}/correlation/run", h.handleRun)
	router.Get("/v1/subjects/{subjectID}/events", h.handleListEvents)
	router.Get("/v1/events/{eventID}/contributions", h.handleListContributions)

	r.Mount("/", router)
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := chi.URLParam(r, "subjectID")

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	result, err := h.service.Run(ctx, subjectID, req.WindowHours)
	if err != nil {
		switch {
		case errors.Is(err, correlation.ErrInvalidWindow):
			writeError(w, http.StatusBadRequest, "invalid_window", err.Error())
		case errors.Is(err, correlation.ErrEvaluationInProgress):
			writeError(w, http.StatusConflict, "evaluation_in_progress", err.Error())
		default:
			h.logger.ErrorContext(ctx, "correlation run failed",
				"subject_id", subjectID,
				"error", err,
				"request_id", middleware.GetRequestID(ctx),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "correlation run failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, toRunResponse(result))
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := chi.URLParam(r, "subjectID")

	events, err := h.events.ListBySubject(ctx, subjectID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list events failed", "subject_id", subjectID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list events")
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, toEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListContributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := uuid.Parse(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_event_id", "event id must be a UUID")
		return
	}

	contributions, err := h.events.ListContributions(ctx, eventID)
	if err != nil {
		if errors.Is(err, correlation.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "compound event not found")
			return
		}
		h.logger.ErrorContext(ctx, "list contributions failed", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "could not list contributions")
		return
	}

	out := make([]contributionResponse, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, toContributionResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
