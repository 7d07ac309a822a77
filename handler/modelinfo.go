package handler

import (
	"net/http"
	"time"

	"github.com/kcolemangt/llm-gateway/model"
	"go.uber.org/zap"
)

type modelInfoResponse struct {
	Models    map[string]model.ModelInfo `json:"models"`
	UpdatedAt *time.Time                 `json:"updated_at"`
	Error     string                     `json:"error,omitempty"`
}

type refreshResponse struct {
	Success   bool       `json:"success"`
	Count     int        `json:"count,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ServeModelInfo returns the cached model metadata, fetching it first when stale.
func (g *Gateway) ServeModelInfo(w http.ResponseWriter, r *http.Request) {
	if err := g.modelInfo.Ensure(r.Context()); err != nil {
		g.logger.Error("Model info unavailable", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, modelInfoResponse{
			Models: map[string]model.ModelInfo{},
			Error:  "Failed to fetch model info",
		})
		return
	}
	models, updated := g.modelInfo.Snapshot()
	w.Header().Set("Cache-Control", "public, max-age=600, s-maxage=600")
	writeJSON(w, http.StatusOK, modelInfoResponse{Models: models, UpdatedAt: &updated})
}

// RefreshModelInfo forces a refetch of the model metadata.
func (g *Gateway) RefreshModelInfo(w http.ResponseWriter, r *http.Request) {
	count, err := g.modelInfo.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, refreshResponse{Error: err.Error()})
		return
	}
	_, updated := g.modelInfo.Snapshot()
	writeJSON(w, http.StatusOK, refreshResponse{Success: true, Count: count, UpdatedAt: &updated})
}
