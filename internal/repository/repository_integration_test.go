//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/service"
	"github.com/cloo-solutions/medicalchat/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func newDocument(t *testing.T, ctx context.Context, repo *DocumentRepository, name string) *domain.Document {
	doc := domain.NewDocument(uuid.NewString(), name, "public/"+name, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, doc))
	return doc
}

func vector(dims int, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1
	return v
}

func TestDocumentRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewDocumentRepository(pool)

	doc := newDocument(t, ctx, repo, "report.pdf")

	got, err := repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.Title)
	assert.Equal(t, "public/report.pdf", got.FileKey)

	require.NoError(t, repo.UpdateTitle(ctx, doc.ID, "Quarterly Report"))
	got, err = repo.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", got.Title)

	require.NoError(t, repo.Delete(ctx, doc.ID))
	_, err = repo.GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, doc.ID), domain.ErrDocumentNotFound)
	assert.ErrorIs(t, repo.UpdateTitle(ctx, doc.ID, "x"), domain.ErrDocumentNotFound)
}

func TestDocumentRepository_ListWithCursor(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewDocumentRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		doc := domain.NewDocument(uuid.NewString(), "doc.pdf", "", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Create(ctx, doc))
	}

	page, err := repo.ListWithCursor(ctx, nil, 3)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
	assert.True(t, page.HasMore)
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[1].CreatedAt))

	cursor, err := pagination.DecodeCursor(page.Cursor)
	require.NoError(t, err)

	next, err := repo.ListWithCursor(ctx, cursor, 3)
	require.NoError(t, err)
	assert.Len(t, next.Items, 2)
	assert.False(t, next.HasMore)
}

func TestChunkRepository_InsertAndSearch(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	docs := NewDocumentRepository(pool)
	chunks := NewChunkRepository(pool)

	doc := newDocument(t, ctx, docs, "a.pdf")
	other := newDocument(t, ctx, docs, "b.pdf")

	now := time.Now().UTC()
	rows, err := domain.NewChunks(doc.ID, []string{"alpha", "beta", "gamma", "delta"},
		[][]float32{vector(1536, 0), vector(1536, 1), vector(1536, 2), vector(1536, 3)}, now)
	require.NoError(t, err)
	require.NoError(t, chunks.InsertChunks(ctx, domain.IndexVariantHosted, rows))

	otherRows, err := domain.NewChunks(other.ID, []string{"alpha again"}, [][]float32{vector(1536, 0)}, now)
	require.NoError(t, err)
	require.NoError(t, chunks.InsertChunks(ctx, domain.IndexVariantHosted, otherRows))

	results, err := chunks.SimilaritySearch(ctx, domain.IndexVariantHosted, vector(1536, 1), 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "beta", results[0].Content)
	assert.Equal(t, 1, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)

	filtered, err := chunks.SimilaritySearch(ctx, domain.IndexVariantHosted, vector(1536, 0), 3, []string{other.ID})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, other.ID, filtered[0].DocumentID)

	local, err := chunks.SimilaritySearch(ctx, domain.IndexVariantLocal, vector(768, 0), 3, nil)
	require.NoError(t, err)
	assert.Empty(t, local)
}

func TestChunkRepository_WrongDimensionInsertsNothing(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	docs := NewDocumentRepository(pool)
	chunks := NewChunkRepository(pool)

	doc := newDocument(t, ctx, docs, "a.pdf")
	rows, err := domain.NewChunks(doc.ID, []string{"ok", "bad"},
		[][]float32{vector(768, 0), vector(1536, 0)}, time.Now().UTC())
	require.NoError(t, err)

	err = chunks.InsertChunks(ctx, domain.IndexVariantLocal, rows)
	require.Error(t, err)

	n, err := chunks.CountByDocument(ctx, domain.IndexVariantLocal, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDocumentDelete_CascadesChunks(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	docs := NewDocumentRepository(pool)
	chunks := NewChunkRepository(pool)

	doc := newDocument(t, ctx, docs, "a.pdf")
	rows, err := domain.NewChunks(doc.ID, []string{"x"}, [][]float32{vector(768, 5)}, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, chunks.InsertChunks(ctx, domain.IndexVariantLocal, rows))

	require.NoError(t, docs.Delete(ctx, doc.ID))

	n, err := chunks.CountByDocument(ctx, domain.IndexVariantLocal, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConversationRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	docs := NewDocumentRepository(pool)
	convs := NewConversationRepository(pool)
	msgs := NewMessageRepository(pool)

	doc := newDocument(t, ctx, docs, "a.pdf")
	now := time.Now().UTC().Truncate(time.Microsecond)
	conv := domain.NewConversation(uuid.NewString(), "", []string{doc.ID}, now)
	require.NoError(t, convs.Create(ctx, conv))

	got, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Name, got.Name)
	assert.Equal(t, []string{doc.ID}, got.DocumentIDs)

	require.NoError(t, msgs.Create(ctx, domain.NewMessage(uuid.NewString(), conv.ID, domain.RoleUser, "hi", now)))
	require.NoError(t, msgs.Create(ctx, domain.NewMessage(uuid.NewString(), conv.ID, domain.RoleAssistant, "hello", now.Add(time.Millisecond))))

	list, err := msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.RoleUser, list[0].Role)
	assert.Equal(t, domain.RoleAssistant, list[1].Role)

	require.NoError(t, convs.Rename(ctx, conv.ID, "Renamed"))
	got, err = convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, convs.Delete(ctx, conv.ID))
	_, err = convs.GetByID(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	list, err = msgs.ListByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConversationRepository_UnlinkedHasEmptyDocuments(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	convs := NewConversationRepository(pool)

	conv := domain.NewConversation(uuid.NewString(), "plain", nil, time.Now().UTC())
	require.NoError(t, convs.Create(ctx, conv))

	got, err := convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DocumentIDs)

	page, err := convs.ListWithCursor(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestTxRunner_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	runner := NewTxRunner(pool)

	conv := domain.NewConversation(uuid.NewString(), "tx", nil, time.Now().UTC())
	boom := errors.New("boom")

	err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
		require.NoError(t, repos.Conversations().Create(ctx, conv))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = NewConversationRepository(pool).GetByID(ctx, conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}
