// Package api exposes the HTTP surface: event ingestion, timelines, issues,
// and service overviews.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/faultlinehq/faultline/internal/models"
	"github.com/faultlinehq/faultline/internal/services"
	"github.com/faultlinehq/faultline/internal/storage"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeRateLimited   = "RATE_LIMITED"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Pinger reports storage liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the faultline HTTP API.
type Handler struct {
	logger *slog.Logger
	svc    *services.IngestService
	pinger Pinger
}

// NewHandler constructs the API handler.
func NewHandler(logger *slog.Logger, svc *services.IngestService, pinger Pinger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, svc: svc, pinger: pinger}
}

// eventSummary is the compact event reference embedded in issue responses.
type eventSummary struct {
	ID        string           `json:"id"`
	EventType models.EventType `json:"eventType"`
	Message   string           `json:"message"`
	Timestamp int64            `json:"timestamp"`
}

// issueResponse is an issue enriched with its referenced events.
type issueResponse struct {
	*models.Issue
	ResolvedBy     *eventSummary `json:"resolvedBy,omitempty"`
	SuspectedCause *eventSummary `json:"suspectedCause,omitempty"`
}

type batchRequest struct {
	Events []*models.Event `json:"events"`
}

type timelineResponse struct {
	ServiceName              string                 `json:"serviceName"`
	Events                   []models.TimelineEvent `json:"events"`
	CorrelationWindowMinutes float64                `json:"correlationWindowMinutes"`
}

// IngestEvent handles POST /api/events.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}

	result, err := h.svc.Ingest(r.Context(), &event)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}
	jsonCreated(w, result)
}

// IngestBatch handles POST /api/events/batch.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}

	results, err := h.svc.IngestBatch(r.Context(), req.Events)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}
	jsonCreated(w, results)
}

func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidEvent), errors.Is(err, models.ErrInvalidEventType):
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
	default:
		h.logger.Error("ingest failed", slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
	}
}

// ListEvents handles GET /api/events with optional filters.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := storage.EventFilter{ServiceName: query.Get("serviceName")}

	if raw := query.Get("eventType"); raw != "" {
		eventType := models.EventType(raw)
		if !eventType.Valid() {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "unknown eventType "+raw)
			return
		}
		filter.EventType = eventType
	}

	for _, bound := range []struct {
		name   string
		target **int64
	}{
		{"startTime", &filter.StartTime},
		{"endTime", &filter.EndTime},
	} {
		raw := query.Get(bound.name)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, bound.name+" must be epoch milliseconds")
			return
		}
		*bound.target = &value
	}

	events, err := h.svc.Events(r.Context(), filter)
	if err != nil {
		h.logger.Error("list events failed", slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, events)
}

// GetEvent handles GET /api/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	event, err := h.svc.EventByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("get event failed", slog.String("event_id", id), slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, event)
}

// DeleteEvent handles DELETE /api/events/{id}.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.svc.DeleteEvent(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("delete event failed", slog.String("event_id", id), slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonNoContent(w)
}

// Timeline handles GET /api/events/timeline/{serviceName}.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	serviceName := chi.URLParam(r, "serviceName")
	timeline, err := h.svc.Timeline(r.Context(), serviceName)
	if err != nil {
		h.logger.Error("timeline failed", slog.String("service", serviceName), slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, timelineResponse{
		ServiceName:              serviceName,
		Events:                   timeline,
		CorrelationWindowMinutes: h.svc.CorrelationWindow().Minutes(),
	})
}

// ListIssues handles GET /api/issues?serviceName=.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	serviceName := r.URL.Query().Get("serviceName")
	if serviceName == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "serviceName is required")
		return
	}

	issues, err := h.svc.ListIssues(r.Context(), serviceName)
	if err != nil {
		h.logger.Error("list issues failed", slog.String("service", serviceName), slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, h.enrichIssues(r.Context(), issues))
}

// NeedsAttention handles GET /api/issues/needs-attention?serviceName=&limit=.
func (h *Handler) NeedsAttention(w http.ResponseWriter, r *http.Request) {
	serviceName := r.URL.Query().Get("serviceName")
	if serviceName == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "serviceName is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = value
	}

	issues, err := h.svc.TopIssues(r.Context(), serviceName, limit)
	if err != nil {
		h.logger.Error("needs-attention failed", slog.String("service", serviceName), slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, h.enrichIssues(r.Context(), issues))
}

// ListServices handles GET /api/services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.svc.ListServices(r.Context())
	if err != nil {
		h.logger.Error("list services failed", slog.Any("error", err))
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, overviews)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Error("storage ping failed", slog.Any("error", err))
			jsonError(w, http.StatusServiceUnavailable, errCodeInternalError, "storage unavailable")
			return
		}
	}
	jsonOK(w, map[string]string{"status": "ok"})
}

func (h *Handler) enrichIssues(ctx context.Context, issues []*models.Issue) []issueResponse {
	responses := make([]issueResponse, 0, len(issues))
	for _, issue := range issues {
		responses = append(responses, issueResponse{
			Issue:          issue,
			ResolvedBy:     h.summarize(ctx, issue.ResolvedByEventID),
			SuspectedCause: h.summarize(ctx, issue.SuspectedCauseEventID),
		})
	}
	return responses
}

// summarize resolves an event reference, tolerating deleted events.
func (h *Handler) summarize(ctx context.Context, eventID string) *eventSummary {
	event := h.svc.EventByIssue(ctx, eventID)
	if event == nil {
		return nil
	}
	return &eventSummary{
		ID:        event.ID,
		EventType: event.EventType,
		Message:   event.Message,
		Timestamp: event.Timestamp,
	}
}
