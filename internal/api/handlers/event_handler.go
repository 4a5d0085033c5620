package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/disaster-tracker-be/internal/ingest"
	"github.com/isdelr/disaster-tracker-be/internal/models"
	"github.com/isdelr/disaster-tracker-be/internal/store"
)

// EventHandler handles HTTP requests for disaster events.
type EventHandler struct {
	store     store.Store
	submitter ingest.SubmitterProvider
	notifier  ingest.Notifier
}

// NewEventHandler creates a new EventHandler. Manually created events go
// through submitter and, when new, are handed to notifier.
func NewEventHandler(s store.Store, submitter ingest.SubmitterProvider, notifier ingest.Notifier) *EventHandler {
	return &EventHandler{store: s, submitter: submitter, notifier: notifier}
}

// Live handles the request for all active events.
func (h *EventHandler) Live(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.GetActiveEvents(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve live events")
		writeError(w, http.StatusInternalServerError, "Failed to fetch live events")
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

// Past handles the paginated request for past events.
func (h *EventHandler) Past(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	events, err := h.store.GetPastEvents(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve past events")
		writeError(w, http.StatusInternalServerError, "Failed to fetch past events")
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

// Search handles free-text search; q is required.
func (h *EventHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "Search query is required")
		return
	}

	events, err := h.store.SearchEvents(r.Context(), q)
	if err != nil {
		log.Error().Err(err).Str("query", q).Msg("Failed to search events")
		writeError(w, http.StatusInternalServerError, "Failed to search events")
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

// ByType filters events by event type.
func (h *EventHandler) ByType(w http.ResponseWriter, r *http.Request) {
	eventType := chi.URLParam(r, "type")
	events, err := h.store.GetEventsByType(r.Context(), eventType)
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to filter events by type")
		writeError(w, http.StatusInternalServerError, "Failed to filter events by type")
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

// ByLocation filters events by exact country name.
func (h *EventHandler) ByLocation(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	events, err := h.store.GetEventsByLocation(r.Context(), country)
	if err != nil {
		log.Error().Err(err).Str("country", country).Msg("Failed to filter events by location")
		writeError(w, http.StatusInternalServerError, "Failed to filter events by location")
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

// BySeverity filters events by severity.
func (h *EventHandler) BySeverity(w http.ResponseWriter, r *http.Request) {
	severity := chi.URLParam(r, "severity")
	events, err := h.store.GetEventsBySeverity(r.Context(), severity)
	if err != nil {
		log.Error().Err(err).Str("severity", severity).Msg("Failed to filter events by severity")
		writeError(w, http.StatusInternalServerError, "Failed to filter events by severity")
		return
	}
	writeJSON(w, http.StatusOK, eventList(events))
}

// Get handles the request for a single event by its ID.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := h.store.GetEvent(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Event not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("event_id", id).Msg("Failed to retrieve event")
		writeError(w, http.StatusInternalServerError, "Failed to fetch event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Create handles manual event entry. A new event answers 201 and is
// broadcast; a (source, sourceId) already stored answers 200 with the
// existing record.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid event data",
			"details": err.Error(),
		})
		return
	}

	stored, isNew, err := h.submitter.Submit(r.Context(), ev)
	if errors.Is(err, ingest.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid event data",
			"details": err.Error(),
		})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to create event")
		writeError(w, http.StatusInternalServerError, "Failed to create event")
		return
	}

	if !isNew {
		writeJSON(w, http.StatusOK, stored)
		return
	}
	log.Info().Str("event_id", stored.ID).Str("source", stored.Source).Msg("Manual event created")
	h.notifier.Notify(stored)
	writeJSON(w, http.StatusCreated, stored)
}

// Stats handles the dashboard statistics request.
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetEventStats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute event stats")
		writeError(w, http.StatusInternalServerError, "Failed to fetch statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
