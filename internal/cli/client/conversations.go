package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// Conversation represents a conversation from the API.
type Conversation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DocumentIDs []string `json:"document_ids"`
	CreatedAt   string   `json:"created_at"`
}

// Message represents a stored chat message.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationPage struct {
	Items   []Conversation `json:"items"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

// ConversationsCmd groups the conversation subcommands.
func ConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage conversations",
	}

	cmd.AddCommand(conversationNewCmd())
	cmd.AddCommand(conversationListCmd())
	cmd.AddCommand(conversationShowCmd())
	cmd.AddCommand(conversationRenameCmd())
	cmd.AddCommand(conversationDeleteCmd())

	return cmd
}

func conversationNewCmd() *cobra.Command {
	var (
		name   string
		docIDs []string
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a conversation, optionally limited to some documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Post("/api/conversations", map[string]interface{}{
				"name":         name,
				"document_ids": docIDs,
			})
			if err != nil {
				return fmt.Errorf("failed to create conversation: %w", err)
			}
			return printConversation(resp.Data, outputJSON)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Conversation name")
	cmd.Flags().StringSliceVar(&docIDs, "doc", nil, "Document ID to search (repeatable)")

	return cmd
}

func conversationListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/api/conversations" + pageQuery(limit, cursor))
			if err != nil {
				return fmt.Errorf("failed to list conversations: %w", err)
			}

			var page conversationPage
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse conversations: %w", err)
			}

			if outputJSON {
				return printJSON(page)
			}
			for _, c := range page.Items {
				fmt.Printf("%s  %s  %s\n", c.ID, c.CreatedAt, c.Name)
			}
			if page.HasMore {
				fmt.Printf("\nmore: --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor from a previous page")

	return cmd
}

func conversationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/api/conversations/" + args[0] + "/messages")
			if err != nil {
				return fmt.Errorf("failed to load messages: %w", err)
			}

			var msgs []Message
			if err := json.Unmarshal(resp.Data, &msgs); err != nil {
				return fmt.Errorf("failed to parse messages: %w", err)
			}

			if outputJSON {
				return printJSON(msgs)
			}
			for _, m := range msgs {
				fmt.Printf("%s: %s\n\n", m.Role, m.Content)
			}
			return nil
		},
	}
}

func conversationRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Patch("/api/conversations/"+args[0], map[string]string{"name": args[1]})
			if err != nil {
				return fmt.Errorf("failed to rename conversation: %w", err)
			}
			return printConversation(resp.Data, outputJSON)
		},
	}
}

func conversationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/api/conversations/" + args[0]); err != nil {
				return fmt.Errorf("failed to delete conversation: %w", err)
			}
			fmt.Printf("Deleted conversation %s\n", args[0])
			return nil
		},
	}
}

func printConversation(data json.RawMessage, outputJSON bool) error {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return fmt.Errorf("failed to parse conversation: %w", err)
	}
	if outputJSON {
		return printJSON(conv)
	}
	fmt.Printf("ID: %s\n", conv.ID)
	fmt.Printf("Name: %s\n", conv.Name)
	if len(conv.DocumentIDs) > 0 {
		fmt.Printf("Documents: %v\n", conv.DocumentIDs)
	}
	fmt.Printf("Created: %s\n", conv.CreatedAt)
	return nil
}

func pageQuery(limit int, cursor string) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
