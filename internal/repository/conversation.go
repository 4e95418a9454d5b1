package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: pool}
}

func NewConversationRepositoryWithTx(tx pgx.Tx) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// Create inserts the conversation and its document links in one batch.
func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation) error {
	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO conversations (id, name, created_at) VALUES ($1, $2, $3)`,
		c.ID, c.Name, c.CreatedAt,
	)
	for _, docID := range c.DocumentIDs {
		batch.Queue(
			`INSERT INTO conversation_documents (conversation_id, document_id) VALUES ($1, $2)`,
			c.ID, docID,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

const conversationSelect = `
	SELECT c.id, c.name, c.created_at,
	       COALESCE(array_agg(cd.document_id::text ORDER BY cd.document_id) FILTER (WHERE cd.document_id IS NOT NULL), '{}')
	FROM conversations c
	LEFT JOIN conversation_documents cd ON cd.conversation_id = c.id`

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRow(ctx,
		conversationSelect+`
		 WHERE c.id = $1
		 GROUP BY c.id`,
		id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.DocumentIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListWithCursor returns conversations newest first
func (r *ConversationRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Conversation], error) {
	limit = pageLimit(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			conversationSelect+`
			 WHERE (c.created_at, c.id) < ($1, $2)
			 GROUP BY c.id
			 ORDER BY c.created_at DESC, c.id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			conversationSelect+`
			 GROUP BY c.id
			 ORDER BY c.created_at DESC, c.id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.DocumentIDs); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.NewPage(items, limit, func(c *domain.Conversation) (string, time.Time) {
		return c.ID, c.CreatedAt
	}), nil
}

func (r *ConversationRepository) Rename(ctx context.Context, id, name string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE conversations SET name = $1 WHERE id = $2`,
		name, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

// Delete removes the conversation; messages and links cascade.
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}
