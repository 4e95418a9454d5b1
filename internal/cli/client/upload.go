package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// UploadResult is the stored location of an uploaded file.
type UploadResult struct {
	FileKey      string `json:"file_key"`
	DocumentName string `json:"document_name"`
}

// IngestRequest mirrors the body of POST /api/embeddings.
type IngestRequest struct {
	Content      []string `json:"content,omitempty"`
	DocumentName string   `json:"document_name,omitempty"`
	FileKey      string   `json:"file_key,omitempty"`
	Channel      string   `json:"channel,omitempty"`
}

// IngestOutcome is the final state of a followed ingestion.
type IngestOutcome struct {
	DocumentID string `json:"id"`
	Title      string `json:"title"`
}

type eventPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	ID      string `json:"id"`
	Title   string `json:"title"`
}

// UploadCmd uploads a PDF, starts ingestion, and follows progress.
func UploadCmd() *cobra.Command {
	var (
		channel  string
		noIngest bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF and ingest it",
		Long: `Uploads a PDF to the document store, starts ingestion, and prints
progress until the document is ready.

Examples:
  medchat upload leaflet.pdf
  medchat upload leaflet.pdf --no-ingest`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runUpload(cmd.Context(), api, args[0], channel, noIngest, outputJSON)
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Progress channel (default: random)")
	cmd.Flags().BoolVar(&noIngest, "no-ingest", false, "Only store the file")

	return cmd
}

func runUpload(ctx context.Context, api *APIClient, path, channel string, noIngest, outputJSON bool) error {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fmt.Errorf("only PDF documents are supported: %s", path)
	}

	resp, err := api.UploadFile("/api/uploads", path, nil)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	var uploaded UploadResult
	if err := json.Unmarshal(resp.Data, &uploaded); err != nil {
		return fmt.Errorf("failed to parse upload response: %w", err)
	}

	if noIngest {
		if outputJSON {
			return printJSON(uploaded)
		}
		fmt.Printf("Uploaded %s as %s\n", uploaded.DocumentName, uploaded.FileKey)
		return nil
	}

	if !outputJSON {
		fmt.Printf("Uploaded %s\n", uploaded.DocumentName)
	}
	return runIngest(ctx, api, IngestRequest{
		FileKey:      uploaded.FileKey,
		DocumentName: uploaded.DocumentName,
		Channel:      channel,
	}, outputJSON)
}

// IngestCmd starts ingestion of an already stored file or a text file.
func IngestCmd() *cobra.Command {
	var (
		fileKey  string
		textFile string
		name     string
		channel  string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a stored document or a text file",
		Long: `Starts ingestion and follows its progress.

Examples:
  medchat ingest --file-key public/leaflet.pdf
  medchat ingest --text notes.txt --name "Ward notes"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			req := IngestRequest{FileKey: fileKey, DocumentName: name, Channel: channel}
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("failed to read text file: %w", err)
				}
				req.Content = []string{string(data)}
				if req.DocumentName == "" {
					req.DocumentName = filepath.Base(textFile)
				}
			}
			if req.FileKey == "" && len(req.Content) == 0 {
				return fmt.Errorf("one of --file-key or --text is required")
			}

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runIngest(cmd.Context(), api, req, outputJSON)
		},
	}

	cmd.Flags().StringVar(&fileKey, "file-key", "", "Blob store key of an uploaded PDF")
	cmd.Flags().StringVar(&textFile, "text", "", "Plain text file to ingest instead of a PDF")
	cmd.Flags().StringVar(&name, "name", "", "Document name")
	cmd.Flags().StringVar(&channel, "channel", "", "Progress channel (default: random)")

	return cmd
}

// runIngest subscribes to the progress channel before submitting so no
// event is missed, then follows it to completion.
func runIngest(ctx context.Context, api *APIClient, req IngestRequest, outputJSON bool) error {
	if req.Channel == "" {
		req.Channel = uuid.NewString()
	}

	ctx, cancel := signal.NotifyContext(contextOrBackground(ctx), os.Interrupt)
	defer cancel()

	events, err := api.OpenStream(ctx, http.MethodGet, eventsPath(req.Channel), nil)
	if err != nil {
		return fmt.Errorf("failed to subscribe to progress: %w", err)
	}
	defer events.Close()

	if _, err := api.Post("/api/embeddings", req); err != nil {
		return fmt.Errorf("failed to start ingestion: %w", err)
	}

	outcome, err := followIngestion(events, func(msg string) {
		if !outputJSON {
			fmt.Println(msg)
		}
	})
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(outcome)
	}
	fmt.Printf("Ready: %s (%s)\n", outcome.Title, outcome.DocumentID)
	return nil
}

// followIngestion reads progress events until the document completes or fails
func followIngestion(r io.Reader, onProgress func(string)) (*IngestOutcome, error) {
	var (
		outcome *IngestOutcome
		failure error
	)

	err := ReadEvents(r, func(ev Event) bool {
		var p eventPayload
		_ = json.Unmarshal(ev.Data, &p)

		switch ev.Name {
		case "upload:progress":
			onProgress(p.Message)
			return true
		case "upload:error":
			failure = fmt.Errorf("ingestion failed: %s", p.Error)
			return false
		case "upload:complete":
			outcome = &IngestOutcome{DocumentID: p.ID, Title: p.Title}
			return false
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("progress stream failed: %w", err)
	}
	if failure != nil {
		return nil, failure
	}
	if outcome == nil {
		return nil, fmt.Errorf("progress stream closed before ingestion finished")
	}
	return outcome, nil
}

// WatchCmd prints the raw events of an upload channel.
func WatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <channel>",
		Short: "Print upload events for a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt)
			defer cancel()

			events, err := api.OpenStream(ctx, http.MethodGet, eventsPath(args[0]), nil)
			if err != nil {
				return err
			}
			defer events.Close()

			err = ReadEvents(events, func(ev Event) bool {
				fmt.Printf("%s %s\n", ev.Name, ev.Data)
				return true
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func eventsPath(channel string) string {
	return "/api/uploads/" + url.PathEscape(channel) + "/events"
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
