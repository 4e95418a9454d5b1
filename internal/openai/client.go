package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultChatModel is the hosted chat model
	DefaultChatModel = openai.GPT3Dot5Turbo
	// DefaultBatchSize caps the number of inputs per embeddings request
	DefaultBatchSize = 512
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has the wrong dimension
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrCountMismatch is returned when the provider returns fewer vectors than inputs
	ErrCountMismatch = errors.New("embedding count does not match input count")
	// ErrNoChoices is returned when a chat completion has no choices
	ErrNoChoices = errors.New("no completion choices returned")
)

// ChatStream is the receive side of a streamed chat completion
type ChatStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// API is the subset of the OpenAI HTTP API the client uses
type API interface {
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error)
}

// OpenAIAdapter talks to any OpenAI-compatible endpoint, including Ollama's /v1
type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey, baseURL string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// CreateEmbeddings calls the embeddings endpoint and returns vectors in input order
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return a.client.CreateChatCompletion(ctx, req)
}

func (a *OpenAIAdapter) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (ChatStream, error) {
	return a.client.CreateChatCompletionStream(ctx, req)
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	ChatModel           string
	// BatchSize bounds inputs per embeddings request
	BatchSize int
	// RequestsPerSecond paces embeddings requests; zero disables pacing
	RequestsPerSecond float64
}

// Client embeds texts and runs chat completions against one provider
type Client struct {
	api        API
	dimensions int
	chatModel  string
	batchSize  int
	limiter    *rate.Limiter
}

// NewClientWithConfig creates a new client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	return newClient(NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, cfg.EmbeddingModel), cfg)
}

func newClient(api API, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = DefaultChatModel
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Client{
		api:        api,
		dimensions: dimensions,
		chatModel:  chatModel,
		batchSize:  batchSize,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// EmbedTexts embeds all texts, splitting them into sub-batches no larger than
// the configured batch size. The result is aligned with texts.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := c.api.CreateEmbeddings(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrCountMismatch, len(vectors), len(batch))
		}
		for i, v := range vectors {
			if len(v) != c.dimensions {
				return nil, fmt.Errorf("%w: input %d has %d, expected %d", ErrWrongDimensions, start+i, len(v), c.dimensions)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Complete runs a non-streaming chat completion and returns the reply text
func (c *Client) Complete(ctx context.Context, messages []domain.ChatTurn, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.chatRequest(messages, temperature, false))
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream runs a streamed chat completion, calling onToken for each content
// delta. The full reply is returned only when the provider signals the end
// of generation; cancellation or any error yields an empty string.
func (c *Client) Stream(ctx context.Context, messages []domain.ChatTurn, temperature float32, onToken func(string) error) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.chatRequest(messages, temperature, true))
	if err != nil {
		return "", fmt.Errorf("chat stream failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return full.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("chat stream interrupted: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		full.WriteString(token)
		if onToken != nil {
			if err := onToken(token); err != nil {
				return "", err
			}
		}
	}
}

func (c *Client) chatRequest(messages []domain.ChatTurn, temperature float32, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	// go-openai omits a zero temperature; the smallest float forces an
	// effectively deterministic request instead of the server default.
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: temperature,
		Stream:      stream,
	}
}
