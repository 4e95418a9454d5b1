package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/medicalchat/internal/api"
	"github.com/cloo-solutions/medicalchat/internal/service"
)

type IngestionService interface {
	Submit(ctx context.Context, input service.IngestInput) error
}

type IngestionHandler struct {
	svc IngestionService
}

func NewIngestionHandler(svc IngestionService) *IngestionHandler {
	return &IngestionHandler{svc: svc}
}

type IngestResponse struct {
	OK bool `json:"ok"`
}

// Ingest accepts a document for background ingestion. Progress is reported
// on the upload channel, not in the response.
func (h *IngestionHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req service.IngestInput
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.svc.Submit(r.Context(), req); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, IngestResponse{OK: true})
}
