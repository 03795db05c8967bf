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

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Embeds the query and prints the most similar fragments visible
to the caller, best match first.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		owner, _ := cmd.Flags().GetString("owner")
		topK, _ := cmd.Flags().GetInt("top-k")
		query := strings.Join(args, " ")

		ctx := context.Background()
		retrieval, cleanup, err := buildRetrievalService(ctx)
		if err != nil {
			log.Fatalf("Failed to build retrieval service: %v", err)
		}
		defer cleanup()

		hits, err := retrieval.Search(ctx, query, topK, owner)
		if err != nil {
			log.Fatalf("Failed to search: %v", err)
		}
		if len(hits) == 0 {
			fmt.Println("No results")
			return
		}
		for i, hit := range hits {
			fmt.Printf("%d. [%3d] %s (doc %s, fragment %d)\n", i+1, hit.Score, hit.Title, hit.DocID, hit.ChunkIndex)
			fmt.Printf("   %s\n", hit.Snippet)
		}
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("owner", "o", "", "Owner user id")
	searchCmd.Flags().IntP("top-k", "k", 0, "Number of results (0 uses the configured default)")
}
