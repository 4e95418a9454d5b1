package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "public/report.pdf"},
		{"../../etc/passwd", "public/passwd"},
		{"C:\\Users\\me\\scan.pdf", "public/scan.pdf"},
		{"nested/dir/file.pdf", "public/file.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentKey(tt.in))
		})
	}
}
