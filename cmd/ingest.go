/*
Copyright © 2025 agenthub
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthub/knowledge-be/types"
	"github.com/agenthub/knowledge-be/utils"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a document into the knowledge base",
	Long: `Reads a text or markdown file, splits it into fragments, embeds
them and stores the result. Passing --doc-id replaces an existing
document's fragments in one step.`,
	Run: func(cmd *cobra.Command, args []string) {
		filePath, _ := cmd.Flags().GetString("file")
		title, _ := cmd.Flags().GetString("title")
		docID, _ := cmd.Flags().GetString("doc-id")
		owner, _ := cmd.Flags().GetString("owner")
		scope, _ := cmd.Flags().GetString("scope")
		url, _ := cmd.Flags().GetString("url")
		tags, _ := cmd.Flags().GetStringArray("tags")

		if filePath == "" {
			log.Fatal("missing required flag: --file")
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatalf("Failed to read file: %v", err)
		}
		if title == "" {
			title = utils.FileNameWithoutExt(filePath)
		}

		ctx := context.Background()
		retrieval, cleanup, err := buildRetrievalService(ctx)
		if err != nil {
			log.Fatalf("Failed to build retrieval service: %v", err)
		}
		defer cleanup()

		doc, err := retrieval.Ingest(ctx, &types.IngestRequest{
			DocID:   docID,
			Owner:   owner,
			Title:   title,
			Content: string(content),
			Source:  types.SourceUpload,
			URL:     url,
			Tags:    tags,
			Scope:   scope,
		})
		if err != nil {
			log.Fatalf("Failed to ingest document: %v", err)
		}
		fmt.Printf("Ingested document %s (%s), embedded with %s/%s dim %d\n",
			doc.DocID, doc.Title, doc.EmbedProvider, doc.EmbedModel, doc.EmbedDim)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("file", "f", "", "Path to the file to ingest")
	ingestCmd.Flags().StringP("title", "t", "", "Document title (defaults to file name)")
	ingestCmd.Flags().String("doc-id", "", "Existing document id to replace")
	ingestCmd.Flags().StringP("owner", "o", "", "Owner user id")
	ingestCmd.Flags().StringP("scope", "s", "", "Visibility scope: global or private")
	ingestCmd.Flags().StringP("url", "u", "", "Source URL for the document")
	ingestCmd.Flags().StringArrayP("tags", "g", []string{}, "Tags for the document")
}
