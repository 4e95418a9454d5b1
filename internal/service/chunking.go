package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/medicalchat/internal/domain"
)

const (
	DefaultChunkSize    = 4096
	DefaultChunkOverlap = 200
)

// chunkSeparators are tried in order: paragraph, line, word, character.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// TextSplitter splits text into chunks of at most ChunkSize characters.
// Adjacent chunks share a tail of at most ChunkOverlap characters.
type TextSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultTextSplitter returns a splitter with 4096 character chunks and 200 characters of overlap
func DefaultTextSplitter() *TextSplitter {
	return &TextSplitter{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// NewTextSplitter validates the chunk configuration
func NewTextSplitter(chunkSize, chunkOverlap int) (*TextSplitter, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, domain.ErrInvalidChunkConfig.Wrap(
			fmt.Errorf("size=%d overlap=%d", chunkSize, chunkOverlap))
	}
	return &TextSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// Split returns the ordered chunks of text. Empty text yields no chunks and
// text no longer than ChunkSize yields exactly one.
func (s *TextSplitter) Split(text string) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if runeLen(clean) <= s.ChunkSize {
		return []string{clean}
	}
	return s.split(clean, chunkSeparators)
}

func (s *TextSplitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var next []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			next = nil
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			next = separators[i+1:]
			break
		}
	}

	var final, small []string
	for _, piece := range splitNonEmpty(text, separator) {
		if runeLen(piece) < s.ChunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			final = append(final, s.merge(small, separator)...)
			small = nil
		}
		if len(next) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, next)...)
		}
	}
	if len(small) > 0 {
		final = append(final, s.merge(small, separator)...)
	}
	return final
}

// merge greedily packs pieces into chunks, keeping the running total within
// ChunkSize and carrying at most ChunkOverlap characters into the next chunk.
func (s *TextSplitter) merge(pieces []string, separator string) []string {
	sepLen := runeLen(separator)
	var chunks, current []string
	total := 0

	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n+joinLen() > s.ChunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.ChunkOverlap || (total > 0 && total+n+joinLen() > s.ChunkSize) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += n + joinLen()
		current = append(current, piece)
	}

	if chunk := strings.TrimSpace(strings.Join(current, separator)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func splitNonEmpty(text, separator string) []string {
	parts := strings.Split(text, separator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
