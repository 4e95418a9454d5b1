package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds a single stream line; context parts carry whole chunks
const maxLineBytes = 1 << 20

// ContextChunk is one retrieved passage sent ahead of an answer
type ContextChunk struct {
	ID         int64   `json:"id"`
	DocumentID string  `json:"document_id"`
	Index      int     `json:"index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// DataStreamHandler receives the parts of an answer stream
type DataStreamHandler struct {
	OnContext func([]ContextChunk)
	OnToken   func(string)
}

// ReadDataStream consumes an answer stream until EOF. An error part ends the
// stream with that message as the error.
func ReadDataStream(r io.Reader, h DataStreamHandler) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		code, payload, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("malformed stream line %q", line)
		}

		switch code {
		case "0":
			var token string
			if err := json.Unmarshal([]byte(payload), &token); err != nil {
				return fmt.Errorf("invalid text part: %w", err)
			}
			if h.OnToken != nil {
				h.OnToken(token)
			}
		case "2":
			var parts []struct {
				Context []ContextChunk `json:"context"`
			}
			if err := json.Unmarshal([]byte(payload), &parts); err != nil {
				return fmt.Errorf("invalid data part: %w", err)
			}
			for _, p := range parts {
				if h.OnContext != nil {
					h.OnContext(p.Context)
				}
			}
		case "3":
			var msg string
			if err := json.Unmarshal([]byte(payload), &msg); err != nil {
				msg = payload
			}
			return errors.New(msg)
		}
	}

	return scanner.Err()
}

// Event is one server-sent event
type Event struct {
	Name string
	Data json.RawMessage
}

// ReadEvents consumes a server-sent event stream, calling onEvent per event
// until it returns false or the stream ends. Comment lines are skipped.
func ReadEvents(r io.Reader, onEvent func(Event) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		name string
		data strings.Builder
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name == "" && data.Len() == 0 {
				continue
			}
			ev := Event{Name: name, Data: json.RawMessage(data.String())}
			name = ""
			data.Reset()
			if !onEvent(ev) {
				return nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	return scanner.Err()
}
