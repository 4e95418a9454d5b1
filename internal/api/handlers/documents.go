package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/api"
	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/service"
	"github.com/go-chi/chi/v5"
)

const (
	uploadFormField = "file"
	// multipartMemory is how much of an upload is buffered in memory before spilling to disk
	multipartMemory = 8 << 20
)

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
	PresignUpload(ctx context.Context, filename string) (*service.PresignResult, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, input service.ListInput) (*pagination.PageResult[*domain.Document], error)
	Delete(ctx context.Context, id string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FileKey   string `json:"file_key,omitempty"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

type PresignRequest struct {
	Filename string `json:"filename"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:        d.ID,
		Name:      d.Name,
		FileKey:   d.FileKey,
		Title:     d.Title,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Upload stores a PDF sent as the "file" field of a multipart form
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.HandleError(w, domain.ErrRequestTooLarge)
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := h.svc.Upload(r.Context(), service.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, result)
}

func (h *DocumentHandler) Presign(w http.ResponseWriter, r *http.Request) {
	var req PresignRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	result, err := h.svc.PresignUpload(r.Context(), req.Filename)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, result)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), listInput(r))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		items[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func listInput(r *http.Request) service.ListInput {
	q := r.URL.Query()
	return service.ListInput{Cursor: q.Get("cursor"), Limit: pagination.ParseLimit(q.Get("limit"))}
}
