package service

import (
	"context"
	"errors"

	"github.com/cloo-solutions/medicalchat/internal/domain"
)

// Embedder converts texts to vectors in one logical call
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel produces completions. Stream returns the full reply only when
// generation reached its end; on error or cancellation it returns "".
type ChatModel interface {
	Complete(ctx context.Context, messages []domain.ChatTurn, temperature float32) (string, error)
	Stream(ctx context.Context, messages []domain.ChatTurn, temperature float32, onToken func(string) error) (string, error)
}

var (
	errHostedNotConfigured = errors.New("hosted provider not configured")
	errLocalNotConfigured  = errors.New("local provider not configured")
)

// ProviderKind distinguishes the hosted API from the on-premise model server
type ProviderKind string

const (
	ProviderHosted ProviderKind = "hosted"
	ProviderLocal  ProviderKind = "local"
)

// Provider bundles the models of one backend with the index variant its
// embeddings live in.
type Provider struct {
	Kind     ProviderKind
	Embedder Embedder
	Chat     ChatModel
	Variant  domain.IndexVariant
	// RewriteTemperature is used for the standalone query rewrite call
	RewriteTemperature float32
}

// Routing carries the two independent inputs of provider selection
type Routing struct {
	ForceLocal    bool
	QuotaExceeded bool
}

// Resolved is the outcome of provider selection for one request. Embedding
// decides the index variant; Chat serves query rewrites, titles and answers.
type Resolved struct {
	Embedding *Provider
	Chat      *Provider
}

// Variant is the index variant searched and written for this request
func (r *Resolved) Variant() domain.IndexVariant {
	return r.Embedding.Variant
}

// ProviderSet holds the configured providers. Either may be nil.
type ProviderSet struct {
	Hosted     *Provider
	Local      *Provider
	ForceLocal bool
}

// NewProviderSet creates a ProviderSet
func NewProviderSet(hosted, local *Provider, forceLocal bool) *ProviderSet {
	return &ProviderSet{Hosted: hosted, Local: local, ForceLocal: forceLocal}
}

// HasCredentials reports whether the deployment can serve requests at all
func (s *ProviderSet) HasCredentials() bool {
	if s.ForceLocal {
		return s.Local != nil
	}
	return s.Hosted != nil
}

// Routing builds the routing input for a request from the deployment mode and
// the limiter outcome.
func (s *ProviderSet) Routing(quotaExceeded bool) Routing {
	return Routing{ForceLocal: s.ForceLocal, QuotaExceeded: quotaExceeded}
}

// Resolve selects providers once per request.
//
// ForceLocal routes everything to the local provider. Otherwise embeddings
// always use the hosted provider so that queries hit the index documents were
// written to, and an exceeded quota only moves chat calls to the local
// provider when one is configured.
func (s *ProviderSet) Resolve(r Routing) (*Resolved, error) {
	if r.ForceLocal {
		if s.Local == nil {
			return nil, domain.ErrProviderUnavailable.Wrap(errLocalNotConfigured)
		}
		return &Resolved{Embedding: s.Local, Chat: s.Local}, nil
	}

	if s.Hosted == nil {
		return nil, domain.ErrProviderUnavailable.Wrap(errHostedNotConfigured)
	}

	chat := s.Hosted
	if r.QuotaExceeded && s.Local != nil {
		chat = s.Local
	}
	return &Resolved{Embedding: s.Hosted, Chat: chat}, nil
}
