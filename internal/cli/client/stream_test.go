package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDataStream(t *testing.T) {
	body := `2:[{"context":[{"id":4,"document_id":"doc-1","index":0,"content":"Take with food.","similarity":0.82}]}]` + "\n" +
		`0:"Take "` + "\n" +
		`0:"it with \"food\"."` + "\n"

	var chunks []ContextChunk
	var answer strings.Builder
	err := ReadDataStream(strings.NewReader(body), DataStreamHandler{
		OnContext: func(c []ContextChunk) { chunks = append(chunks, c...) },
		OnToken:   func(tok string) { answer.WriteString(tok) },
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, `Take it with "food".`, answer.String())
}

func TestReadDataStream_ErrorPart(t *testing.T) {
	body := "2:[{\"context\":[]}]\n0:\"partial\"\n3:\"model call failed\"\n0:\"ignored\"\n"

	var answer strings.Builder
	err := ReadDataStream(strings.NewReader(body), DataStreamHandler{
		OnToken: func(tok string) { answer.WriteString(tok) },
	})

	require.EqualError(t, err, "model call failed")
	assert.Equal(t, "partial", answer.String())
}

func TestReadDataStream_Malformed(t *testing.T) {
	err := ReadDataStream(strings.NewReader("garbage\n"), DataStreamHandler{})
	assert.Error(t, err)
}

func TestReadEvents(t *testing.T) {
	body := ": ping\n\n" +
		"event: upload:progress\ndata: {\"message\":\"Processing document...\"}\n\n" +
		"event: upload:complete\ndata: {\"id\":\"doc-1\",\"title\":\"Aspirin\"}\n\n" +
		"event: upload:progress\ndata: {\"message\":\"never read\"}\n\n"

	var events []Event
	err := ReadEvents(strings.NewReader(body), func(ev Event) bool {
		events = append(events, ev)
		return ev.Name != "upload:complete"
	})

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "upload:progress", events[0].Name)
	assert.JSONEq(t, `{"message":"Processing document..."}`, string(events[0].Data))
	assert.Equal(t, "upload:complete", events[1].Name)
}
