package database

import (
	"context"
	"fmt"
	"math"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/types"
)

// UpsertRequest replaces all fragments of one document in a vector store.
type UpsertRequest struct {
	DocID      string
	Owner      string
	Title      string
	URL        string
	Scope      string
	Tags       []string
	Chunks     []string
	Embeddings [][]float32
}

// VectorSearchResult is one fragment returned by a store with its raw
// cosine similarity. Stores agree on ranking; absolute scores are only
// comparable after normalization by the retrieval service.
type VectorSearchResult struct {
	DocID      string
	ChunkIndex int
	Owner      string
	Title      string
	URL        string
	Content    string
	Score      float32
	Scope      string
	Tags       []string
}

// VectorStore is the backend-agnostic index of (fragment, vector, metadata)
// triples keyed by document.
//
// UpsertDocument atomically replaces all fragments of a document; on error
// the previous generation stays intact. DeleteDocument is idempotent.
// Search returns at most topK results by descending cosine similarity;
// owner scopes visibility: global documents always match, private ones only
// for their owner. The filter is applied inside the store so private rows
// never leave it.
type VectorStore interface {
	UpsertDocument(ctx context.Context, req *UpsertRequest) error
	DeleteDocument(ctx context.Context, docID string) error
	Search(ctx context.Context, queryVector []float32, topK int, owner string) ([]VectorSearchResult, error)
}

// NewVectorStore resolves the configured backend into a concrete store.
// Returns (nil, nil) when the vector index is disabled by configuration;
// callers degrade to no-op retrieval in that case.
func NewVectorStore(ctx context.Context, cfg config.VectorConfig, dim int, weaviateAPIKey, milvusPassword string) (VectorStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "local":
		return NewLocalStore(cfg.Local.Dir, dim)
	case "milvus":
		return NewMilvusStore(ctx, cfg.Milvus, milvusPassword, dim)
	case "weaviate":
		return NewWeaviateStore(ctx, cfg.Weaviate, weaviateAPIKey, dim)
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", types.ErrInvalidArgument, cfg.Backend)
	}
}

// validateUpsert enforces the shared upsert preconditions before any
// backend mutates state.
func validateUpsert(req *UpsertRequest, dim int) error {
	if req == nil || req.DocID == "" {
		return fmt.Errorf("%w: doc id is required", types.ErrInvalidArgument)
	}
	if len(req.Chunks) != len(req.Embeddings) {
		return fmt.Errorf("%w: %d chunks but %d embeddings", types.ErrInvalidArgument, len(req.Chunks), len(req.Embeddings))
	}
	for i, v := range req.Embeddings {
		if len(v) != dim {
			return fmt.Errorf("%w: expected dimension %d, got %d at chunk %d", types.ErrDimensionMismatch, dim, len(v), i)
		}
	}
	return nil
}

// normalizeVector returns a unit-length copy of v. Inner products of
// normalized vectors are exact cosine similarities.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-8
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// visibleTo reports whether a fragment with the given scope and owner may
// be returned to the querying owner ("" means anonymous).
func visibleTo(scope, fragmentOwner, queryOwner string) bool {
	if scope == types.ScopeGlobal {
		return true
	}
	return queryOwner != "" && fragmentOwner == queryOwner
}
