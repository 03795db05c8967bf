/*
Copyright © 2025 agenthub
*/
package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"
)

// listDocumentsCmd represents the list-documents command
var listDocumentsCmd = &cobra.Command{
	Use:   "list-documents",
	Short: "List documents visible to the caller",
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")

		ctx := context.Background()
		retrieval, cleanup, err := buildRetrievalService(ctx)
		if err != nil {
			log.Fatalf("Failed to build retrieval service: %v", err)
		}
		defer cleanup()

		docs, err := retrieval.ListDocuments(ctx, owner)
		if err != nil {
			log.Fatalf("Failed to list documents: %v", err)
		}
		if len(docs) == 0 {
			fmt.Println("No documents")
			return
		}
		for _, doc := range docs {
			fmt.Printf("%s  %-8s  %s", doc.DocID, doc.Scope, doc.Title)
			if len(doc.Tags) > 0 {
				fmt.Printf("  [%s]", strings.Join(doc.Tags, ", "))
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(listDocumentsCmd)

	listDocumentsCmd.Flags().StringP("owner", "o", "", "Owner user id")
}
