package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cloo-solutions/medicalchat/internal/domain"
)

const (
	pdfToTextBinary = "pdftotext"
	defaultTimeout  = 2 * time.Minute
	pageSeparator   = "\f"
)

// ErrPDFToolNotFound is returned when pdftotext is not on PATH
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CommandRunner runs external programs
type CommandRunner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// PDFExtractor turns a PDF byte stream into page texts using poppler's pdftotext
type PDFExtractor struct {
	runner  CommandRunner
	timeout time.Duration
}

func NewPDFExtractor() *PDFExtractor {
	return NewPDFExtractorWithRunner(ExecRunner{})
}

func NewPDFExtractorWithRunner(runner CommandRunner) *PDFExtractor {
	return &PDFExtractor{runner: runner, timeout: defaultTimeout}
}

// Available reports whether pdftotext can be found
func (e *PDFExtractor) Available() bool {
	_, err := e.runner.LookPath(pdfToTextBinary)
	return err == nil
}

// Pages returns the text of each page in order. A document with no text at
// all yields domain.ErrEmptyDocument.
func (e *PDFExtractor) Pages(ctx context.Context, r io.Reader) ([]string, error) {
	if _, err := e.runner.LookPath(pdfToTextBinary); err != nil {
		return nil, domain.ErrExtractionFailed.Wrap(fmt.Errorf("%w: %v", ErrPDFToolNotFound, err))
	}

	tmp, err := os.CreateTemp("", "medchat-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("spool pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("spool pdf: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.runner.Run(callCtx, pdfToTextBinary, "-enc", "UTF-8", "-q", tmp.Name(), "-")
	if err != nil {
		return nil, domain.ErrExtractionFailed.Wrap(err)
	}

	pages := SplitPages(string(out))
	if len(pages) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	return pages, nil
}

// SplitPages splits pdftotext output on form feeds. Trailing blank pages are
// dropped; if every page is blank the result is empty.
func SplitPages(text string) []string {
	pages := strings.Split(text, pageSeparator)
	for len(pages) > 0 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
