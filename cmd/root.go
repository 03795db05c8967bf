/*
Copyright © 2025 agenthub
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/database"
	"github.com/agenthub/knowledge-be/repository"
	"github.com/agenthub/knowledge-be/service"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "knowledge-be",
	Short: "Knowledge retrieval backend",
	Long: `Backend for the shared knowledge base: ingests documents into a
vector index and answers similarity queries with ranked snippets.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file")
}

// buildRetrievalService assembles the full pipeline from the config file.
// The returned cleanup closes backend connections and is safe to call
// even when some backends are disabled.
func buildRetrievalService(ctx context.Context) (service.RetrievalService, func(), error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	chunker := service.NewChunkService(cfg.Split, nil)

	embedder, err := service.NewEmbeddingService(cfg.Embedding, cfg.OpenAIAPIKey, cfg.GeminiAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	store, err := database.NewVectorStore(ctx, cfg.Vector, cfg.Embedding.Dimension, cfg.WeaviateAPIKey, cfg.MilvusPassword)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	var catalog repository.DocumentRepo
	cleanup := func() {}
	if cfg.MongoURI != "" {
		mongoClient, err := database.NewMongoClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			_ = mongoClient.Disconnect(context.Background())
		}
		catalog = repository.NewDocumentRepo(
			mongoClient.Database(cfg.Mongo.Database).Collection("documents"))
	}

	return service.NewRetrievalService(cfg, chunker, embedder, store, catalog), cleanup, nil
}
