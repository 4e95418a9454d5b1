package service

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/medicalchat/internal/domain"
)

const (
	standaloneQuestionPrompt = `Given the following conversation and a follow-up question, rephrase the follow-up question to be a standalone keyword-based question. Reply only with the question, nothing else.
----------
Standalone question:`

	answerPromptTemplate = `You are a PDF Document Retrieval Agent. Your job is to find the most relevant documents to answer the question. You can use the following context to answer the question. If you don't know the answer, just say that you don't know, don't try to make up an answer.
----------
CONTEXT: %s
----------`

	titlePromptTemplate = `Write a short, descriptive title for the document the following excerpt comes from. Reply only with the title, nothing else.
----------
%s`

	contextSeparator = "----\n"

	answerTemperature = 0.5
	titleTemperature  = 0.2

	// titleSourceChunks is how many leading chunks feed title generation
	titleSourceChunks = 3
	titleSourceLimit  = 6000
	maxTitleLength    = 200
)

// formatContext renders retrieved chunks as page blocks for the answer prompt
func formatContext(chunks []domain.ScoredChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("\n## Page %d\n%s\n", c.ChunkIndex, c.Content)
	}
	return strings.Join(blocks, contextSeparator)
}

func rewriteMessages(history []domain.ChatTurn) []domain.ChatTurn {
	msgs := make([]domain.ChatTurn, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, domain.ChatTurn{Role: domain.RoleSystem, Content: standaloneQuestionPrompt})
}

func answerMessages(chunks []domain.ScoredChunk, history []domain.ChatTurn) []domain.ChatTurn {
	msgs := make([]domain.ChatTurn, 0, len(history)+1)
	msgs = append(msgs, domain.ChatTurn{
		Role:    domain.RoleSystem,
		Content: fmt.Sprintf(answerPromptTemplate, formatContext(chunks)),
	})
	return append(msgs, history...)
}

// titleSource joins the leading chunks and caps the result in characters
func titleSource(chunks []string) string {
	n := min(len(chunks), titleSourceChunks)
	text := strings.Join(chunks[:n], "\n\n")
	runes := []rune(text)
	if len(runes) > titleSourceLimit {
		text = string(runes[:titleSourceLimit])
	}
	return text
}

func titleMessages(chunks []string) []domain.ChatTurn {
	return []domain.ChatTurn{{
		Role:    domain.RoleUser,
		Content: fmt.Sprintf(titlePromptTemplate, titleSource(chunks)),
	}}
}

// cleanTitle strips whitespace and wrapping quotes from a model reply
func cleanTitle(reply string) string {
	title := strings.TrimSpace(reply)
	title = strings.Trim(title, "\"'`")
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = strings.TrimSpace(string(runes[:maxTitleLength]))
	}
	return title
}
