package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/types"
)

// fakeEmbedder returns one vector per text whose first component is the
// text length, making output ordering observable.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    [][]string
	failures int
	dim      int
}

func (f *fakeEmbedder) embedBatch(_ context.Context, batch []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), batch...))
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("upstream unavailable")
	}
	out := make([][]float32, len(batch))
	for i, text := range batch {
		v := make([]float32, f.dim)
		v[0] = float32(len(text))
		out[i] = v
	}
	return out, nil
}

func newTestEmbeddingService(client batchEmbedder, batchSize, maxRetries int) *embeddingService {
	return &embeddingService{
		provider:   "openai",
		model:      "test-model",
		batchSize:  batchSize,
		maxRetries: maxRetries,
		timeout:    time.Second,
		baseDelay:  time.Millisecond,
		maxDelay:   4 * time.Millisecond,
		client:     client,
	}
}

func TestEncodeBatchingPreservesOrder(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	svc := newTestEmbeddingService(fake, 2, 3)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := svc.Encode(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0])
	}
	require.Len(t, fake.calls, 3)
	assert.Len(t, fake.calls[0], 2)
	assert.Len(t, fake.calls[1], 2)
	assert.Len(t, fake.calls[2], 1)
}

func TestEncodeEmptyInput(t *testing.T) {
	svc := newTestEmbeddingService(&fakeEmbedder{dim: 4}, 2, 3)
	vectors, err := svc.Encode(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEncodeAllBlankSkipsProvider(t *testing.T) {
	fake := &fakeEmbedder{dim: 4}
	svc := newTestEmbeddingService(fake, 2, 3)

	vectors, err := svc.Encode(context.Background(), []string{"", "   ", "\n\t"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Equal(t, []float32{0, 0, 0}, v)
	}
	assert.Empty(t, fake.calls, "provider must not be called for all-blank input")
}

func TestEncodeRetriesThenSucceeds(t *testing.T) {
	fake := &fakeEmbedder{dim: 4, failures: 2}
	svc := newTestEmbeddingService(fake, 8, 3)

	vectors, err := svc.Encode(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Len(t, fake.calls, 3)
}

func TestEncodeRetryExhaustion(t *testing.T) {
	fake := &fakeEmbedder{dim: 4, failures: 3}
	svc := newTestEmbeddingService(fake, 8, 3)

	_, err := svc.Encode(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "upstream unavailable")
	assert.Len(t, fake.calls, 3)
}

func TestDimensionRecordedOnFirstSuccess(t *testing.T) {
	fake := &fakeEmbedder{dim: 7}
	svc := newTestEmbeddingService(fake, 8, 3)

	assert.Equal(t, 0, svc.Dimension())
	_, err := svc.Encode(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, 7, svc.Dimension())
}

func TestNewEmbeddingServiceUnknownProvider(t *testing.T) {
	_, err := NewEmbeddingService(config.EmbeddingConfig{Provider: "bedrock"}, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestOpenAIEmbedderAgainstCompatibleServer(t *testing.T) {
	const dim = 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type embeddingData struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]embeddingData, len(req.Input))
		for i := range req.Input {
			data[i] = embeddingData{
				Object:    "embedding",
				Index:     i,
				Embedding: []float32{float32(i), 0, 1},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
	defer server.Close()

	svc, err := NewEmbeddingService(config.EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		BaseURL:    fmt.Sprintf("%s/v1", server.URL),
		BatchSize:  64,
		MaxRetries: 1,
		Timeout:    5 * time.Second,
	}, "test-key", "")
	require.NoError(t, err)

	vectors, err := svc.Encode(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0, 0, 1}, vectors[0])
	assert.Equal(t, []float32{1, 0, 1}, vectors[1])
	assert.Equal(t, dim, svc.Dimension())
}
