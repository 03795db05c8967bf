package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/types"
)

// EmbeddingService turns batches of text into fixed-dimension vectors.
// Encode is order-preserving: one vector per input text.
type EmbeddingService interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension reports the vector dimension observed on the first
	// successful call, or zero before any call succeeded.
	Dimension() int
	Provider() string
	Model() string
}

// batchEmbedder is the per-provider remote call. Implementations issue
// exactly one request for the given batch and return one vector per text.
type batchEmbedder interface {
	embedBatch(ctx context.Context, batch []string) ([][]float32, error)
}

type embeddingService struct {
	provider   string
	model      string
	batchSize  int
	maxRetries int
	timeout    time.Duration
	baseDelay  time.Duration
	maxDelay   time.Duration
	client     batchEmbedder

	mu  sync.Mutex
	dim int
}

// NewEmbeddingService resolves the configured provider into a concrete
// embedding client. Provider selection happens here, once; callers never
// branch on provider identifiers.
func NewEmbeddingService(cfg config.EmbeddingConfig, openAIKey, geminiKey string) (EmbeddingService, error) {
	svc := &embeddingService{
		provider:   cfg.Provider,
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
		baseDelay:  800 * time.Millisecond,
		maxDelay:   4 * time.Second,
	}
	if svc.batchSize <= 0 {
		svc.batchSize = 64
	}
	if svc.maxRetries <= 0 {
		svc.maxRetries = 3
	}
	if svc.timeout <= 0 {
		svc.timeout = 30 * time.Second
	}

	switch cfg.Provider {
	case "openai":
		svc.client = newOpenAIEmbedder(cfg.BaseURL, openAIKey, cfg.Model)
	case "gemini":
		client, err := newGeminiEmbedder(geminiKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini embedding client: %w", err)
		}
		svc.client = client
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", types.ErrInvalidArgument, cfg.Provider)
	}
	return svc, nil
}

func (s *embeddingService) Provider() string { return s.provider }
func (s *embeddingService) Model() string    { return s.model }

func (s *embeddingService) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

// Encode embeds texts in batches of the configured size. Batch boundaries
// are invisible to the caller: output order matches input order. If every
// input is blank the remote provider is not called at all and minimal
// placeholder vectors come back instead.
func (s *embeddingService) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allBlank := true
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			allBlank = false
			break
		}
	}
	if allBlank {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = []float32{0, 0, 0}
		}
		return out, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := s.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", types.ErrEmbeddingFailed, len(vectors), end-start)
		}
		out = append(out, vectors...)
	}

	s.mu.Lock()
	if s.dim == 0 && len(out) > 0 {
		s.dim = len(out[0])
	}
	s.mu.Unlock()

	return out, nil
}

// embedWithRetry issues one batch call with exponential backoff. The error
// from the final attempt is preserved in the returned error chain.
func (s *embeddingService) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	delay := s.baseDelay
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		vectors, err := s.client.embedBatch(callCtx, batch)
		cancel()
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		if attempt == s.maxRetries {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > s.maxDelay {
			delay = s.maxDelay
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", types.ErrEmbeddingFailed, s.maxRetries, lastErr)
}
