package service

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiEmbedder embeds text through the Gemini embedding API.
type geminiEmbedder struct {
	model *genai.EmbeddingModel
}

func newGeminiEmbedder(apiKey, model string) (*geminiEmbedder, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &geminiEmbedder{model: client.EmbeddingModel(model)}, nil
}

func (e *geminiEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	b := e.model.NewBatch()
	for _, text := range batch {
		b = b.AddContent(genai.Text(text))
	}
	resp, err := e.model.BatchEmbedContents(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Embeddings))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, em := range resp.Embeddings {
		vectors[i] = em.Values
	}
	return vectors, nil
}
