package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

// ChatTurn is one message of the history sent with a question.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnswerRequest mirrors the body of POST /api/retrieval.
type AnswerRequest struct {
	ConversationID string     `json:"conversation_id"`
	Messages       []ChatTurn `json:"messages"`
}

// AskCmd asks a question in a conversation and streams the answer.
func AskCmd() *cobra.Command {
	var (
		conversationID string
		showContext    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the conversation's documents",
		Long: `Sends the question together with the conversation history and prints
the answer as it streams.

Examples:
  medchat ask --conversation 6f1c... "What is the maximum daily dose?"
  medchat ask -c 6f1c... --show-context "And for children?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), api, conversationID, strings.Join(args, " "), showContext)
		},
	}

	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "Conversation ID")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the retrieved passages before the answer")
	_ = cmd.MarkFlagRequired("conversation")

	return cmd
}

func runAsk(ctx context.Context, api *APIClient, conversationID, question string, showContext bool) error {
	history, err := fetchHistory(api, conversationID)
	if err != nil {
		return err
	}

	req := AnswerRequest{
		ConversationID: conversationID,
		Messages:       append(history, ChatTurn{Role: "user", Content: question}),
	}

	ctx, cancel := signal.NotifyContext(contextOrBackground(ctx), os.Interrupt)
	defer cancel()

	body, err := api.OpenStream(ctx, http.MethodPost, "/api/retrieval", req)
	if err != nil {
		return fmt.Errorf("failed to ask: %w", err)
	}
	defer body.Close()

	err = ReadDataStream(body, DataStreamHandler{
		OnContext: func(chunks []ContextChunk) {
			if !showContext {
				return
			}
			for _, c := range chunks {
				fmt.Printf("[%s #%d %.2f] %s\n", c.DocumentID, c.Index, c.Similarity, c.Content)
			}
			fmt.Println()
		},
		OnToken: func(tok string) {
			fmt.Print(tok)
		},
	})
	fmt.Println()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("answer failed: %w", err)
	}
	return nil
}

func fetchHistory(api *APIClient, conversationID string) ([]ChatTurn, error) {
	resp, err := api.Get("/api/conversations/" + conversationID + "/messages")
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal(resp.Data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	history := make([]ChatTurn, len(msgs))
	for i, m := range msgs {
		history[i] = ChatTurn{Role: m.Role, Content: m.Content}
	}
	return history, nil
}
