package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carraro/deskflow/internal/ingest"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a policy document into the knowledge base",
	Long: `Ingest a policy document into the knowledge base.

Examples:
  deskflow ingest --text "Employees accrue 1.5 PTO days per month" --title "PTO Policy" --tags hr
  deskflow ingest --file ./handbook.pdf --tags hr,handbook
  deskflow ingest --url https://intranet.example.com/policies/expenses --tags finance`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		url, _ := cmd.Flags().GetString("url")
		file, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		tagsStr, _ := cmd.Flags().GetString("tags")

		if text == "" && url == "" && file == "" {
			return fmt.Errorf("one of --text, --url, or --file is required")
		}

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		req := map[string]any{}
		if tags != nil {
			req["tags"] = tags
		}
		if title != "" {
			req["title"] = title
		}

		switch {
		case text != "":
			req["type"] = "text"
			req["content"] = text
		case url != "":
			req["type"] = "url"
			req["url"] = url
		case file != "":
			// PDF and HTML are converted to plain text locally before upload.
			docTitle, content, err := ingest.LoadFile(file)
			if err != nil {
				return err
			}
			req["type"] = "text"
			req["content"] = content
			if title == "" {
				req["title"] = docTitle
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/ingest", req)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued doc %s", result["id"])
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "policy text to ingest")
	ingestCmd.Flags().String("url", "", "URL to fetch and ingest")
	ingestCmd.Flags().String("file", "", "file path to ingest (pdf, html or plain text)")
	ingestCmd.Flags().String("title", "", "title for the document")
	ingestCmd.Flags().String("tags", "", "comma-separated tags")
}

// --- tickets ---

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Inspect opened tickets",
}

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/tickets?limit=%d", limit))
		if err != nil {
			return err
		}

		var tickets []struct {
			ID        string `json:"ID"`
			Summary   string `json:"Summary"`
			Requester string `json:"Requester"`
			Urgency   string `json:"Urgency"`
			Status    string `json:"Status"`
		}
		if err := decodeJSON(resp, &tickets); err != nil {
			return err
		}

		if len(tickets) == 0 {
			fmt.Println("No tickets found.")
			return nil
		}

		for _, t := range tickets {
			summary := t.Summary
			if len(summary) > 60 {
				summary = summary[:60] + "..."
			}
			fmt.Printf("%s  %-6s  %-4s  %s\n",
				colorize(colorCyan, t.ID[:8]),
				t.Urgency,
				t.Status,
				summary,
			)
		}
		return nil
	},
}

var ticketsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/tickets/"+args[0])
		if err != nil {
			return err
		}

		var ticket any
		if err := decodeJSON(resp, &ticket); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ticket)
	},
}

func init() {
	ticketsListCmd.Flags().Int("limit", 20, "maximum number of tickets to list")
	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsShowCmd)
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage ingested policy documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/documents?limit=%d", limit))
		if err != nil {
			return err
		}

		var docs []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Tags  string `json:"tags"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}

		if len(docs) == 0 {
			fmt.Println("No documents found.")
			return nil
		}

		for _, d := range docs {
			line := fmt.Sprintf("%s  %s", colorize(colorCyan, d.ID[:8]), d.Title)
			if d.Tags != "" && d.Tags != "[]" {
				line += "  " + d.Tags
			}
			fmt.Println(line)
		}
		return nil
	},
}

var docsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a document and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/documents/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted doc %s", args[0])
		return nil
	},
}

func init() {
	docsListCmd.Flags().Int("limit", 20, "maximum number of documents to list")
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsRemoveCmd)
}
