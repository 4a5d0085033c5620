package handlers

import (
	"context"
	"net/http"

	"github.com/isdelr/disaster-tracker-be/internal/models"
)

// Refresher runs an ingestion cycle on demand.
type Refresher interface {
	RefreshNow(ctx context.Context) models.RefreshResult
}

// RefreshHandler forces an ingestion cycle.
type RefreshHandler struct {
	refresher Refresher
}

// NewRefreshHandler creates a new RefreshHandler.
func NewRefreshHandler(refresher Refresher) *RefreshHandler {
	return &RefreshHandler{refresher: refresher}
}

type refreshResponse struct {
	Message   string         `json:"message"`
	NewEvents int            `json:"newEvents"`
	Sources   map[string]int `json:"sources"`
}

// Refresh waits for a full cycle and reports new events per source. Feed
// failures are not errors here; they show up as zero counts.
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result := h.refresher.RefreshNow(r.Context())
	writeJSON(w, http.StatusOK, refreshResponse{
		Message:   "Data refreshed successfully",
		NewEvents: result.Total,
		Sources:   result.Sources,
	})
}
