package extract

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/cloo-solutions/medicalchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) LookPath(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	called := m.Called(name, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).([]byte), called.Error(1)
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"single page", "hello", []string{"hello"}},
		{"two pages with trailing feed", "one\ftwo\f", []string{"one", "two"}},
		{"blank middle page kept", "one\f\fthree\f", []string{"one", "", "three"}},
		{"only blanks", " \f\n\f", []string{}},
		{"empty", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPages(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPDFExtractor_Pages(t *testing.T) {
	runner := new(MockRunner)
	runner.On("LookPath", "pdftotext").Return("/usr/bin/pdftotext", nil)
	runner.On("Run", "pdftotext", mock.MatchedBy(func(args []string) bool {
		if len(args) != 5 || args[0] != "-enc" || args[4] != "-" {
			return false
		}
		_, err := os.Stat(args[3])
		return err == nil
	})).Return([]byte("Page one text\fPage two text\f"), nil)

	ex := NewPDFExtractorWithRunner(runner)
	pages, err := ex.Pages(context.Background(), strings.NewReader("%PDF-1.4 fake"))

	require.NoError(t, err)
	assert.Equal(t, []string{"Page one text", "Page two text"}, pages)
	runner.AssertExpectations(t)
}

func TestPDFExtractor_MissingBinary(t *testing.T) {
	runner := new(MockRunner)
	runner.On("LookPath", "pdftotext").Return("", errors.New("not found"))

	ex := NewPDFExtractorWithRunner(runner)
	_, err := ex.Pages(context.Background(), strings.NewReader("x"))

	assert.ErrorIs(t, err, ErrPDFToolNotFound)
	assert.True(t, domain.IsCode(err, domain.ErrCodeExtraction))
	assert.False(t, ex.Available())
}

func TestPDFExtractor_RunFailure(t *testing.T) {
	runner := new(MockRunner)
	runner.On("LookPath", "pdftotext").Return("/usr/bin/pdftotext", nil)
	runner.On("Run", "pdftotext", mock.Anything).Return(nil, errors.New("Syntax Error: Couldn't find trailer dictionary"))

	ex := NewPDFExtractorWithRunner(runner)
	_, err := ex.Pages(context.Background(), strings.NewReader("not a pdf"))

	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}

func TestPDFExtractor_EmptyDocument(t *testing.T) {
	runner := new(MockRunner)
	runner.On("LookPath", "pdftotext").Return("/usr/bin/pdftotext", nil)
	runner.On("Run", "pdftotext", mock.Anything).Return([]byte("\f\f"), nil)

	ex := NewPDFExtractorWithRunner(runner)
	_, err := ex.Pages(context.Background(), strings.NewReader("scanned"))

	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}
