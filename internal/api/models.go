package api

import (
	"log/slog"
	"net/http"

	"github.com/geoffsee/open-gsio/internal/provider"
)

// modelsHandler exposes the merged model catalog.
type modelsHandler struct {
	catalog *provider.Catalog
	logger  *slog.Logger
}

// modelsResponse mirrors the OpenAI list shape so existing clients can point
// at this endpoint unchanged.
type modelsResponse struct {
	Object string           `json:"object"`
	Data   []provider.Model `json:"data"`
}

func (h *modelsHandler) list(w http.ResponseWriter, r *http.Request) {
	models, err := h.catalog.Models(r.Context())
	if err != nil {
		h.logger.Error("listing models failed", "error", err)
		writeError(w, http.StatusInternalServerError, "catalog_unavailable", "failed to list models", h.logger)
		return
	}
	if models == nil {
		models = []provider.Model{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Object: "list", Data: models})
}
