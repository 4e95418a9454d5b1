package repository

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// chunkTable maps an index variant to its table and match function.
type chunkTable struct {
	table    string
	function string
}

var chunkTables = map[domain.IndexVariant]chunkTable{
	domain.IndexVariantHosted: {table: "document_chunks", function: "match_documents"},
	domain.IndexVariantLocal:  {table: "document_chunks_local", function: "match_documents_local"},
}

func tableFor(variant domain.IndexVariant) (chunkTable, error) {
	t, ok := chunkTables[variant]
	if !ok {
		return chunkTable{}, fmt.Errorf("unknown index variant %q", variant)
	}
	return t, nil
}

// ChunkRepository persists chunk embeddings. Each index variant lives in its
// own table with a fixed vector dimension.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// InsertChunks writes all rows in one batch. A batch outside an explicit
// transaction runs as a single implicit transaction, so either every row
// lands or none does.
func (r *ChunkRepository) InsertChunks(ctx context.Context, variant domain.IndexVariant, chunks []domain.Chunk) error {
	t, err := tableFor(variant)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (document_id, chunk_index, content, embedding, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.table,
	)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(query, c.DocumentID, c.ChunkIndex, c.Content, pgvector.NewVector(c.Embedding), c.CreatedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	return results.Close()
}

// SimilaritySearch returns the k chunks closest to embedding in the given
// variant, optionally restricted to documentIDs.
func (r *ChunkRepository) SimilaritySearch(ctx context.Context, variant domain.IndexVariant, embedding []float32, k int, documentIDs []string) ([]domain.ScoredChunk, error) {
	t, err := tableFor(variant)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 3
	}

	var filter []string
	if len(documentIDs) > 0 {
		filter = documentIDs
	}

	rows, err := r.db.Query(ctx,
		fmt.Sprintf(`SELECT id, document_id, content, chunk_index, similarity
		 FROM %s($1, $2, $3::text[]::uuid[])`, t.function),
		pgvector.NewVector(embedding), k, filter,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var c domain.ScoredChunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &c.Similarity); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, variant domain.IndexVariant, documentID string) (int, error) {
	t, err := tableFor(variant)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE document_id = $1`, t.table),
		documentID,
	).Scan(&n)
	return n, err
}
