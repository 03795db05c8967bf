package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/types"
)

const weaviateBatchSize = 200

// WeaviateStore backs the vector index with a Weaviate class. Vectors
// are supplied by the embedding layer, so the class is created with
// Vectorizer "none" and cosine distance on its HNSW index.
type WeaviateStore struct {
	client  *weaviate.Client
	class   string
	dim     int
	timeout time.Duration
}

func NewWeaviateStore(ctx context.Context, cfg config.WeaviateConfig, apiKey string, dim int) (*WeaviateStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidArgument, dim)
	}

	var scheme string
	if strings.Contains(cfg.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(cfg.Host, scheme+"://")
	clientCfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if apiKey != "" {
		clientCfg.AuthConfig = auth.ApiKey{
			Value: apiKey,
		}
	}

	client, err := weaviate.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create weaviate client: %v", types.ErrIndexUnavailable, err)
	}

	s := &WeaviateStore{
		client:  client,
		class:   cfg.Class,
		dim:     dim,
		timeout: cfg.Timeout,
	}
	if err := s.ensureClass(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *WeaviateStore) ensureClass(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	schema, err := s.client.Schema().Getter().Do(opCtx)
	if err != nil {
		return fmt.Errorf("%w: get schema: %v", types.ErrIndexUnavailable, err)
	}
	for _, class := range schema.Classes {
		if class.Class == s.class {
			return nil
		}
	}

	classObj := &models.Class{
		Class: s.class,
		Properties: []*models.Property{
			{Name: "docId", DataType: []string{"text"}},
			{Name: "chunkIndex", DataType: []string{"int"}},
			{Name: "owner", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "url", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "scope", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
		},
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
		VectorIndexConfig: map[string]interface{}{
			"distance": "cosine",
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(classObj).Do(opCtx); err != nil {
		return fmt.Errorf("%w: create class %s: %v", types.ErrIndexUnavailable, s.class, err)
	}
	return nil
}

func (s *WeaviateStore) UpsertDocument(ctx context.Context, req *UpsertRequest) error {
	if err := validateUpsert(req, s.dim); err != nil {
		return err
	}
	if err := s.DeleteDocument(ctx, req.DocID); err != nil {
		return err
	}

	total := len(req.Chunks)
	for i := 0; i < total; i += weaviateBatchSize {
		end := i + weaviateBatchSize
		if end > total {
			end = total
		}

		batcher := s.client.Batch().ObjectsBatcher()
		for j := i; j < end; j++ {
			properties := map[string]interface{}{
				"docId":      req.DocID,
				"chunkIndex": j,
				"owner":      req.Owner,
				"title":      req.Title,
				"url":        req.URL,
				"content":    req.Chunks[j],
				"scope":      req.Scope,
				"tags":       req.Tags,
			}
			batcher = batcher.WithObjects(&models.Object{
				Class:      s.class,
				Properties: properties,
				Vector:     normalizeVector(req.Embeddings[j]),
			})
		}

		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := batcher.Do(opCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %w", i, end, err)
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("failed to insert chunk object: %s", obj.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (s *WeaviateStore) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return nil
	}
	where := filters.Where().
		WithPath([]string{"docId"}).
		WithOperator(filters.Equal).
		WithValueString(docID)

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.class).
		WithWhere(where).
		Do(opCtx)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}

func (s *WeaviateStore) Search(ctx context.Context, queryVector []float32, topK int, owner string) ([]VectorSearchResult, error) {
	if len(queryVector) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", types.ErrDimensionMismatch, len(queryVector), s.dim)
	}
	if topK < 1 {
		topK = 1
	}

	fields := []graphql.Field{
		{Name: "docId"},
		{Name: "chunkIndex"},
		{Name: "owner"},
		{Name: "title"},
		{Name: "url"},
		{Name: "content"},
		{Name: "scope"},
		{Name: "tags"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(normalizeVector(queryVector))

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(buildScopeFilter(owner)).
		WithLimit(topK).
		Do(opCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to search weaviate: %w", err)
	}
	if result.Errors != nil {
		return nil, fmt.Errorf("failed to search weaviate: %v", result.Errors[0].Message)
	}

	var out []VectorSearchResult
	if data, ok := result.Data["Get"].(map[string]interface{})[s.class].([]interface{}); ok {
		for _, item := range data {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			r := VectorSearchResult{
				DocID:   asString(obj["docId"]),
				Owner:   asString(obj["owner"]),
				Title:   asString(obj["title"]),
				URL:     asString(obj["url"]),
				Content: asString(obj["content"]),
				Scope:   asString(obj["scope"]),
				Tags:    asStringSlice(obj["tags"]),
			}
			if v, ok := obj["chunkIndex"].(float64); ok {
				r.ChunkIndex = int(v)
			}
			if additional, ok := obj["_additional"].(map[string]interface{}); ok {
				if d, ok := additional["distance"].(float64); ok {
					// Cosine distance d maps to similarity 1 - d.
					r.Score = float32(1 - d)
				}
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// buildScopeFilter restricts matches to globally visible fragments plus,
// when a caller identity is present, the caller's private fragments.
func buildScopeFilter(owner string) *filters.WhereBuilder {
	globalFilter := filters.Where().
		WithPath([]string{"scope"}).
		WithOperator(filters.Equal).
		WithValueString(types.ScopeGlobal)
	if owner == "" {
		return globalFilter
	}
	ownerFilter := filters.Where().
		WithPath([]string{"owner"}).
		WithOperator(filters.Equal).
		WithValueString(owner)
	return filters.Where().
		WithOperator(filters.Or).
		WithOperands([]*filters.WhereBuilder{globalFilter, ownerFilter})
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			result = append(result, s)
		}
	}
	return result
}

var _ VectorStore = (*WeaviateStore)(nil)
