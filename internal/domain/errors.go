package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches another DomainError with the same code and message, so wrapped
// copies created with Wrap still satisfy errors.Is against the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Wrap returns a copy of the sentinel carrying err as its cause
func (e *DomainError) Wrap(err error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Err: err}
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err carries a DomainError with the given code
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeTooLarge      = "PAYLOAD_TOO_LARGE"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeExtraction    = "EXTRACTION_ERROR"
	ErrCodePersistence   = "PERSISTENCE_ERROR"
	ErrCodeProvider      = "PROVIDER_ERROR"
	ErrCodeUnavailable   = "UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrEmptyMessages        = NewDomainError(ErrCodeValidation, "messages cannot be empty")
	ErrLastMessageNotUser   = NewDomainError(ErrCodeValidation, "last message must come from the user")
	ErrInvalidRole          = NewDomainError(ErrCodeValidation, "invalid message role")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "chunk overlap must be smaller than chunk size")
	ErrInvalidCursor        = NewDomainError(ErrCodeValidation, "invalid cursor")
	ErrUnsupportedFileType  = NewDomainError(ErrCodeValidation, "only PDF documents are supported")
	ErrInvalidRequestBody   = NewDomainError(ErrCodeValidation, "invalid request body")
	ErrRequestTooLarge      = NewDomainError(ErrCodeTooLarge, "request body too large")
)

// Not found errors
var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
)

// Configuration and quota errors
var (
	ErrMissingAPIKey       = NewDomainError(ErrCodeConfiguration, "MISSING_API_KEY")
	ErrTooManyRequests     = NewDomainError(ErrCodeRateLimited, "TOO_MANY_REQUESTS")
	ErrProviderUnavailable = NewDomainError(ErrCodeProvider, "provider unavailable")
)

// Pipeline errors
var (
	ErrEmptyDocument      = NewDomainError(ErrCodeExtraction, "document contains no extractable text")
	ErrExtractionFailed   = NewDomainError(ErrCodeExtraction, "failed to extract document text")
	ErrEmbeddingFailed    = NewDomainError(ErrCodeProvider, "failed to compute embeddings")
	ErrGenerationFailed   = NewDomainError(ErrCodeProvider, "model call failed")
	ErrPersistenceFailed  = NewDomainError(ErrCodePersistence, "failed to persist rows")
	ErrStorageUnavailable = NewDomainError(ErrCodeUnavailable, "blob storage not configured")
	ErrQueueFull          = NewDomainError(ErrCodeUnavailable, "ingestion queue is full")
)
