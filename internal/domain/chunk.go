package domain

import (
	"fmt"
	"time"
)

// IndexVariant names the chunk table and match function pair that holds vectors
// produced by one embedding provider. Variants are never queried across.
type IndexVariant string

const (
	IndexVariantHosted IndexVariant = "hosted"
	IndexVariantLocal  IndexVariant = "local"
)

// Dimensions is the width of the variant's vector column. The migrations fix
// it per table, so embedders writing to a variant must produce exactly this.
func (v IndexVariant) Dimensions() int {
	if v == IndexVariantLocal {
		return 768
	}
	return 1536
}

// Chunk is a bounded slice of a document's sanitized text with its embedding
type Chunk struct {
	ID         int64
	DocumentID string
	ChunkIndex int
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredChunk is a chunk returned by a similarity search
type ScoredChunk struct {
	ID         int64   `json:"id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// NewChunks pairs texts with their vectors, assigning contiguous indices from 0.
func NewChunks(documentID string, texts []string, vectors [][]float32, createdAt time.Time) ([]Chunk, error) {
	if len(texts) != len(vectors) {
		return nil, fmt.Errorf("chunk count %d does not match vector count %d", len(texts), len(vectors))
	}

	chunks := make([]Chunk, len(texts))
	for i := range texts {
		chunks[i] = Chunk{
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    texts[i],
			Embedding:  vectors[i],
			CreatedAt:  createdAt,
		}
	}
	return chunks, nil
}

// ValidateChunkSequence checks that chunks belong to one document, carry
// contiguous indices starting at 0 and share a single vector dimension.
func ValidateChunkSequence(chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("chunk sequence cannot be empty")
	}

	documentID := chunks[0].DocumentID
	dims := len(chunks[0].Embedding)
	if dims == 0 {
		return fmt.Errorf("chunk 0 has an empty embedding")
	}

	for i, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("chunk %d belongs to document %s, expected %s", i, c.DocumentID, documentID)
		}
		if c.ChunkIndex != i {
			return fmt.Errorf("chunk at position %d has index %d", i, c.ChunkIndex)
		}
		if len(c.Embedding) != dims {
			return fmt.Errorf("chunk %d has %d dimensions, expected %d", i, len(c.Embedding), dims)
		}
	}

	return nil
}
