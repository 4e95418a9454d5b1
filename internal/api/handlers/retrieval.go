package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cloo-solutions/medicalchat/internal/api"
	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/cloo-solutions/medicalchat/internal/service"
)

// StreamDataHeader tells data-stream clients that side-channel parts precede the text
const StreamDataHeader = "X-Experimental-Stream-Data"

type RetrievalService interface {
	Answer(ctx context.Context, input service.AnswerInput, sink service.AnswerSink) (*service.AnswerResult, error)
}

type RetrievalHandler struct {
	svc RetrievalService
	log *logger.Logger
}

func NewRetrievalHandler(svc RetrievalService, log *logger.Logger) *RetrievalHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RetrievalHandler{svc: svc, log: log}
}

// Answer streams a grounded reply. Each line is a data-stream part: the
// retrieved context as `2:[{"context":[...]}]`, then one `0:"token"` per
// token, and `3:"message"` if generation fails after streaming began.
func (h *RetrievalHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req service.AnswerInput
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := service.ValidateAnswerInput(req); err != nil {
		api.HandleError(w, err)
		return
	}

	sink := newDataStreamWriter(w)
	_, err := h.svc.Answer(r.Context(), req, sink)
	if err == nil {
		return
	}

	if !sink.started {
		api.HandleError(w, err)
		return
	}
	if r.Context().Err() != nil {
		h.log.Info("client disconnected during answer", "conversation_id", req.ConversationID)
		return
	}
	h.log.Error("answer stream failed", "conversation_id", req.ConversationID, "error", err)
	_ = sink.writePart('3', errorMessage(err))
}

// dataStreamWriter renders an answer in the AI SDK data stream format
type dataStreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newDataStreamWriter(w http.ResponseWriter) *dataStreamWriter {
	flusher, _ := w.(http.Flusher)
	return &dataStreamWriter{w: w, flusher: flusher}
}

func (s *dataStreamWriter) start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set(StreamDataHeader, "true")
	s.w.WriteHeader(http.StatusOK)
}

func (s *dataStreamWriter) WriteContext(chunks []domain.ScoredChunk) error {
	return s.writePart('2', []map[string][]domain.ScoredChunk{{"context": chunks}})
}

func (s *dataStreamWriter) WriteToken(token string) error {
	return s.writePart('0', token)
}

func (s *dataStreamWriter) writePart(code byte, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "%c:%s\n", code, payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func errorMessage(err error) string {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
