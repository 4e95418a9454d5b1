package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/api"
	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/service"
	"github.com/go-chi/chi/v5"
)

type ConversationService interface {
	Create(ctx context.Context, input service.CreateConversationInput) (*domain.Conversation, error)
	Get(ctx context.Context, id string) (*domain.Conversation, error)
	List(ctx context.Context, input service.ListInput) (*pagination.PageResult[*domain.Conversation], error)
	Rename(ctx context.Context, id, name string) (*domain.Conversation, error)
	Delete(ctx context.Context, id string) error
	Messages(ctx context.Context, id string) ([]*domain.Message, error)
}

type ConversationHandler struct {
	svc ConversationService
}

func NewConversationHandler(svc ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type RenameConversationRequest struct {
	Name string `json:"name"`
}

type ConversationResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DocumentIDs []string `json:"document_ids"`
	CreatedAt   string   `json:"created_at"`
}

type ConversationListResponse struct {
	Items   []*ConversationResponse `json:"items"`
	Cursor  string                  `json:"cursor,omitempty"`
	HasMore bool                    `json:"has_more"`
}

type MessageResponse struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func conversationToResponse(c *domain.Conversation) *ConversationResponse {
	docIDs := c.DocumentIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	return &ConversationResponse{
		ID:          c.ID,
		Name:        c.Name,
		DocumentIDs: docIDs,
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateConversationInput
	if r.ContentLength != 0 {
		if err := api.DecodeJSON(r, &req); err != nil {
			api.HandleError(w, err)
			return
		}
	}

	conv, err := h.svc.Create(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, conversationToResponse(conv))
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	conv, err := h.svc.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conversationToResponse(conv))
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.List(r.Context(), listInput(r))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*ConversationResponse, len(page.Items))
	for i, c := range page.Items {
		items[i] = conversationToResponse(c)
	}

	api.Success(w, http.StatusOK, ConversationListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *ConversationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req RenameConversationRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}

	conv, err := h.svc.Rename(r.Context(), id, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, conversationToResponse(conv))
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	msgs, err := h.svc.Messages(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*MessageResponse, len(msgs))
	for i, m := range msgs {
		items[i] = &MessageResponse{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Body,
			CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	api.Success(w, http.StatusOK, items)
}
