/*
Copyright © 2025 agenthub
*/
package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

// deleteDocumentCmd represents the delete-document command
var deleteDocumentCmd = &cobra.Command{
	Use:   "delete-document [doc-id]",
	Short: "Delete a document and its fragments",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")
		docID := args[0]

		ctx := context.Background()
		retrieval, cleanup, err := buildRetrievalService(ctx)
		if err != nil {
			log.Fatalf("Failed to build retrieval service: %v", err)
		}
		defer cleanup()

		if err := retrieval.DeleteDocument(ctx, docID, owner); err != nil {
			log.Fatalf("Failed to delete document: %v", err)
		}
		fmt.Println("Deleted document", docID)
	},
}

func init() {
	rootCmd.AddCommand(deleteDocumentCmd)

	deleteDocumentCmd.Flags().StringP("owner", "o", "", "Owner user id")
}
