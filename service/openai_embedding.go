package service

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// openAIEmbedder calls an OpenAI-compatible embeddings endpoint. A custom
// base URL covers self-hosted or compatible providers (DeepSeek, Qwen).
type openAIEmbedder struct {
	client *openai.Client
	model  string
}

func newOpenAIEmbedder(baseURL, apiKey, model string) *openAIEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &openAIEmbedder{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (e *openAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
	}
	// The response carries an explicit index per embedding; order by it
	// rather than trusting response order.
	vectors := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
