package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/cloo-solutions/medicalchat/internal/logger"
	"github.com/cloo-solutions/medicalchat/internal/pagination"
	"github.com/cloo-solutions/medicalchat/internal/storage"
	"github.com/cloo-solutions/medicalchat/internal/telemetry"
)

const pdfContentType = "application/pdf"

// DocumentService handles uploads and the document catalog
type DocumentService struct {
	documents DocumentRepositoryInterface
	blobs     BlobStore
	log       *logger.Logger
}

// NewDocumentService creates a new DocumentService instance. blobs may be nil
// when no object storage is configured.
func NewDocumentService(documents DocumentRepositoryInterface, blobs BlobStore, log *logger.Logger) *DocumentService {
	if log == nil {
		log = logger.Nop()
	}
	return &DocumentService{documents: documents, blobs: blobs, log: log}
}

// UploadInput represents a PDF to store
type UploadInput struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadResult names a stored file
type UploadResult struct {
	FileKey      string `json:"file_key"`
	DocumentName string `json:"document_name"`
}

// PresignResult carries a direct-upload URL for a file key
type PresignResult struct {
	FileKey      string `json:"file_key"`
	DocumentName string `json:"document_name"`
	UploadURL    string `json:"upload_url"`
}

// Upload stores a PDF under the public prefix keyed by its file name
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Upload", telemetry.SpanAttributes{
		Operation: "upload",
	})
	defer span.End()

	if s.blobs == nil {
		return nil, domain.ErrStorageUnavailable
	}
	name, err := validatePDFName(input.Filename)
	if err != nil {
		return nil, err
	}

	key := storage.DocumentKey(name)
	if err := s.blobs.PutObject(ctx, key, input.Body, input.Size, pdfContentType); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	s.log.Info("document uploaded", "file_key", key, "size", input.Size)
	return &UploadResult{FileKey: key, DocumentName: name}, nil
}

// PresignUpload returns a URL the client can PUT the PDF to directly
func (s *DocumentService) PresignUpload(ctx context.Context, filename string) (*PresignResult, error) {
	if s.blobs == nil {
		return nil, domain.ErrStorageUnavailable
	}
	name, err := validatePDFName(filename)
	if err != nil {
		return nil, err
	}

	key := storage.DocumentKey(name)
	url, err := s.blobs.GenerateUploadURL(ctx, key, pdfContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}
	return &PresignResult{FileKey: key, DocumentName: name, UploadURL: url}, nil
}

// Get returns a document by id
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Get", telemetry.SpanAttributes{
		DocumentID: id,
	})
	defer span.End()

	return s.documents.GetByID(ctx, id)
}

// List returns documents newest first
func (s *DocumentService) List(ctx context.Context, input ListInput) (*pagination.PageResult[*domain.Document], error) {
	cursor, err := decodeCursor(input.Cursor)
	if err != nil {
		return nil, err
	}
	return s.documents.ListWithCursor(ctx, cursor, input.Limit)
}

// Delete removes a document with its chunks and conversation links, then
// removes the stored file. A failed file removal is logged, not returned.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		DocumentID: id,
	})
	defer span.End()

	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, id); err != nil {
		span.SetError(err)
		return err
	}

	if s.blobs != nil && doc.FileKey != "" {
		if err := s.blobs.DeleteObject(ctx, doc.FileKey); err != nil {
			s.log.Warn("failed to delete stored file", "document_id", id, "file_key", doc.FileKey, "error", err)
		}
	}
	return nil
}

func validatePDFName(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return "", domain.ErrMissingRequiredField.Wrap(errors.New("file name is required"))
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		return "", domain.ErrUnsupportedFileType.Wrap(fmt.Errorf("file %q", name))
	}
	return name, nil
}
