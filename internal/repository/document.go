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

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, name, file_key, title, created_at) VALUES ($1, $2, $3, $4, $5)`,
		d.ID, d.Name, nullableString(d.FileKey), d.Title, d.CreatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var d domain.Document
	var fileKey *string
	err := r.db.QueryRow(ctx,
		`SELECT id, name, file_key, title, created_at FROM documents WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.Name, &fileKey, &d.Title, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if fileKey != nil {
		d.FileKey = *fileKey
	}
	return &d, nil
}

// ListWithCursor returns documents newest first
func (r *DocumentRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error) {
	limit = pageLimit(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT id, name, file_key, title, created_at
			 FROM documents
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT id, name, file_key, title, created_at
			 FROM documents
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Document
	for rows.Next() {
		var d domain.Document
		var fileKey *string
		if err := rows.Scan(&d.ID, &d.Name, &fileKey, &d.Title, &d.CreatedAt); err != nil {
			return nil, err
		}
		if fileKey != nil {
			d.FileKey = *fileKey
		}
		items = append(items, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.NewPage(items, limit, func(d *domain.Document) (string, time.Time) {
		return d.ID, d.CreatedAt
	}), nil
}

func (r *DocumentRepository) UpdateTitle(ctx context.Context, id, title string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET title = $1 WHERE id = $2`,
		title, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes the document; chunks and conversation links cascade.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}
