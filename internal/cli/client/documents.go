package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// Document represents an ingested document from the API.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	FileKey   string `json:"file_key,omitempty"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

type documentPage struct {
	Items   []Document `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// DocumentsCmd groups the document subcommands.
func DocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List and delete ingested documents",
	}

	var (
		limit  int
		cursor string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/api/documents" + pageQuery(limit, cursor))
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			var page documentPage
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("failed to parse documents: %w", err)
			}

			if outputJSON {
				return printJSON(page)
			}
			for _, d := range page.Items {
				fmt.Printf("%s  %-30s  %s\n", d.ID, d.Name, d.Title)
			}
			if page.HasMore {
				fmt.Printf("\nmore: --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Page size")
	list.Flags().StringVar(&cursor, "cursor", "", "Cursor from a previous page")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document, its chunks and its stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if _, err := api.Delete("/api/documents/" + args[0]); err != nil {
				return fmt.Errorf("failed to delete document: %w", err)
			}
			fmt.Printf("Deleted document %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}
