package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/api/handlers"
	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) Submit(ctx context.Context, input service.IngestInput) error {
	return m.Called(ctx, input).Error(0)
}

type MockRetrievalService struct {
	mock.Mock
}

func (m *MockRetrievalService) Answer(ctx context.Context, input service.AnswerInput, sink service.AnswerSink) (*service.AnswerResult, error) {
	args := m.Called(ctx, input, sink)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnswerResult), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) PresignUpload(ctx context.Context, filename string) (*service.PresignResult, error) {
	args := m.Called(ctx, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.PresignResult), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, input service.ListInput) (*pagination.PageResult[*domain.Document], error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.Document]), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) Create(ctx context.Context, input service.CreateConversationInput) (*domain.Conversation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationService) List(ctx context.Context, input service.ListInput) (*pagination.PageResult[*domain.Conversation], error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.Conversation]), args.Error(1)
}

func (m *MockConversationService) Rename(ctx context.Context, id, name string) (*domain.Conversation, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockConversationService) Messages(ctx context.Context, id string) ([]*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

type closedSubscriber struct{}

func (closedSubscriber) Subscribe(ctx context.Context, channel string) (<-chan domain.Event, error) {
	ch := make(chan domain.Event, 1)
	ch <- domain.ProgressEvent(channel, "Processing document...")
	close(ch)
	return ch, nil
}

type routerMocks struct {
	ingestion     *MockIngestionService
	retrieval     *MockRetrievalService
	documents     *MockDocumentService
	conversations *MockConversationService
}

func setupRouter() (http.Handler, *routerMocks) {
	mocks := &routerMocks{
		ingestion:     new(MockIngestionService),
		retrieval:     new(MockRetrievalService),
		documents:     new(MockDocumentService),
		conversations: new(MockConversationService),
	}

	router := NewRouter(RouterConfig{
		MaxBodyBytes:        1024,
		MaxUploadBytes:      4096,
		IngestionHandler:    handlers.NewIngestionHandler(mocks.ingestion),
		RetrievalHandler:    handlers.NewRetrievalHandler(mocks.retrieval, nil),
		DocumentHandler:     handlers.NewDocumentHandler(mocks.documents),
		ConversationHandler: handlers.NewConversationHandler(mocks.conversations),
		EventsHandler:       handlers.NewEventsHandler(closedSubscriber{}, nil),
		HealthHandler:       handlers.NewHealthHandler(nil),
	})
	return router, mocks
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouter_IngestionRoute(t *testing.T) {
	router, mocks := setupRouter()
	mocks.ingestion.On("Submit", mock.Anything, service.IngestInput{FileKey: "public/a.pdf"}).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/embeddings", strings.NewReader(`{"file_key":"public/a.pdf"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	mocks.ingestion.AssertExpectations(t)
}

func TestRouter_RetrievalRoute(t *testing.T) {
	router, mocks := setupRouter()
	mocks.retrieval.On("Answer", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sink := args.Get(2).(service.AnswerSink)
			_ = sink.WriteContext(nil)
			_ = sink.WriteToken("ok")
		}).
		Return(&service.AnswerResult{Reply: "ok"}, nil)

	body := `{"conversation_id":"conv-1","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/retrieval", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2:[{\"context\":null}]\n0:\"ok\"\n", w.Body.String())
}

func TestRouter_PathParameters(t *testing.T) {
	router, mocks := setupRouter()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mocks.conversations.On("Get", mock.Anything, "conv-9").Return(&domain.Conversation{ID: "conv-9", Name: "n", CreatedAt: now}, nil)
	mocks.conversations.On("Messages", mock.Anything, "conv-9").Return([]*domain.Message{}, nil)
	mocks.conversations.On("Rename", mock.Anything, "conv-9", "Renamed").Return(&domain.Conversation{ID: "conv-9", Name: "Renamed", CreatedAt: now}, nil)
	mocks.documents.On("Delete", mock.Anything, "doc-3").Return(nil)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/conversations/conv-9", "", http.StatusOK},
		{http.MethodGet, "/api/conversations/conv-9/messages", "", http.StatusOK},
		{http.MethodPatch, "/api/conversations/conv-9", `{"name":"Renamed"}`, http.StatusOK},
		{http.MethodDelete, "/api/documents/doc-3", "", http.StatusNoContent},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
		{http.MethodPut, "/api/conversations/conv-9", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_UploadEventsRoute(t *testing.T) {
	router, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/upload-7/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event: upload:progress\ndata: {\"message\":\"Processing document...\"}\n\n", w.Body.String())
}

func TestRouter_BodyLimits(t *testing.T) {
	router, mocks := setupRouter()

	big := `{"content":["` + strings.Repeat("a", 2048) + `"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/embeddings", strings.NewReader(big))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	mocks.ingestion.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)

	req = httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(strings.Repeat("x", 8192)))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
