package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/types"
)

// MilvusStore delegates storage and approximate search to a Milvus
// cluster. Milvus only exposes row-level insert/delete, so the
// document-level replace is implemented client-side as delete-then-insert
// keyed by doc_id.
type MilvusStore struct {
	client     *milvusclient.Client
	collection string
	dim        int
	timeout    time.Duration
}

func NewMilvusStore(ctx context.Context, cfg config.MilvusConfig, password string, dim int) (*MilvusStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidArgument, dim)
	}
	connCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := milvusclient.New(connCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to milvus at %s: %v", types.ErrIndexUnavailable, cfg.Address, err)
	}

	s := &MilvusStore{
		client:     client,
		collection: cfg.Collection,
		dim:        dim,
		timeout:    cfg.Timeout,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureCollection creates the chunk collection and its vector index when
// absent. An existing collection without an index on the embedding field
// gets one before any search runs.
func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := s.client.HasCollection(opCtx, milvusclient.NewHasCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("%w: check collection: %v", types.ErrIndexUnavailable, err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(s.collection).
			WithDescription("knowledge retrieval chunks").
			WithAutoID(true).
			WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
			WithField(entity.NewField().WithName("doc_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName("chunk_index").WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName("user_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName("title").WithDataType(entity.FieldTypeVarChar).WithMaxLength(256)).
			WithField(entity.NewField().WithName("url").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(8192)).
			WithField(entity.NewField().WithName("scope").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName("tags").WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

		if err := s.client.CreateCollection(opCtx, milvusclient.NewCreateCollectionOption(s.collection, schema)); err != nil {
			return fmt.Errorf("%w: create collection: %v", types.ErrIndexUnavailable, err)
		}
	}

	// The vector index must exist before any search; create it when the
	// collection was made elsewhere without one.
	indexes, err := s.client.ListIndexes(opCtx, milvusclient.NewListIndexOption(s.collection))
	if err != nil {
		return fmt.Errorf("%w: list indexes: %v", types.ErrIndexUnavailable, err)
	}
	if len(indexes) == 0 {
		idx := index.NewHNSWIndex(entity.IP, 8, 64)
		task, err := s.client.CreateIndex(opCtx, milvusclient.NewCreateIndexOption(s.collection, "embedding", idx))
		if err != nil {
			return fmt.Errorf("%w: create vector index: %v", types.ErrIndexUnavailable, err)
		}
		if err := task.Await(opCtx); err != nil {
			return fmt.Errorf("%w: wait for vector index: %v", types.ErrIndexUnavailable, err)
		}
	}

	loadTask, err := s.client.LoadCollection(opCtx, milvusclient.NewLoadCollectionOption(s.collection))
	if err != nil {
		return fmt.Errorf("%w: load collection: %v", types.ErrIndexUnavailable, err)
	}
	if err := loadTask.Await(opCtx); err != nil {
		return fmt.Errorf("%w: wait for collection loading: %v", types.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *MilvusStore) UpsertDocument(ctx context.Context, req *UpsertRequest) error {
	if err := validateUpsert(req, s.dim); err != nil {
		return err
	}
	if err := s.DeleteDocument(ctx, req.DocID); err != nil {
		return err
	}
	if len(req.Chunks) == 0 {
		return nil
	}

	n := len(req.Chunks)
	docIDs := make([]string, n)
	chunkIndexes := make([]int64, n)
	owners := make([]string, n)
	titles := make([]string, n)
	urls := make([]string, n)
	scopes := make([]string, n)
	tagLists := make([]string, n)
	embeddings := make([][]float32, n)

	tagsJSON, err := json.Marshal(req.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	for i := range req.Chunks {
		docIDs[i] = req.DocID
		chunkIndexes[i] = int64(i)
		owners[i] = req.Owner
		titles[i] = req.Title
		urls[i] = req.URL
		scopes[i] = req.Scope
		tagLists[i] = string(tagsJSON)
		// Stored normalized so the IP metric is exact cosine similarity.
		embeddings[i] = normalizeVector(req.Embeddings[i])
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.client.Insert(opCtx, milvusclient.NewColumnBasedInsertOption(s.collection,
		column.NewColumnVarChar("doc_id", docIDs),
		column.NewColumnInt64("chunk_index", chunkIndexes),
		column.NewColumnVarChar("user_id", owners),
		column.NewColumnVarChar("title", titles),
		column.NewColumnVarChar("url", urls),
		column.NewColumnVarChar("content", req.Chunks),
		column.NewColumnVarChar("scope", scopes),
		column.NewColumnVarChar("tags", tagLists),
		column.NewColumnFloatVector("embedding", s.dim, embeddings),
	))
	if err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}

	// Flush so the new generation is visible to the next search.
	flushTask, err := s.client.Flush(opCtx, milvusclient.NewFlushOption(s.collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(opCtx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

func (s *MilvusStore) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return nil
	}
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	expr := fmt.Sprintf("doc_id == %q", docID)
	if _, err := s.client.Delete(opCtx, milvusclient.NewDeleteOption(s.collection).WithExpr(expr)); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, queryVector []float32, topK int, owner string) ([]VectorSearchResult, error) {
	if len(queryVector) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", types.ErrDimensionMismatch, len(queryVector), s.dim)
	}
	if topK < 1 {
		topK = 1
	}

	filter := fmt.Sprintf("scope == %q", types.ScopeGlobal)
	if owner != "" {
		filter = fmt.Sprintf("scope == %q or user_id == %q", types.ScopeGlobal, owner)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := normalizeVector(queryVector)
	results, err := s.client.Search(opCtx, milvusclient.NewSearchOption(
		s.collection,
		topK,
		[]entity.Vector{entity.FloatVector(q)},
	).WithANNSField("embedding").
		WithSearchParam("ef", "64").
		WithFilter(filter).
		WithOutputFields("doc_id", "chunk_index", "user_id", "title", "url", "content", "scope", "tags"))
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	out := make([]VectorSearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		r := VectorSearchResult{Score: results[0].Scores[i]}
		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				switch col.Name() {
				case "doc_id":
					r.DocID = col.Data()[i]
				case "user_id":
					r.Owner = col.Data()[i]
				case "title":
					r.Title = col.Data()[i]
				case "url":
					r.URL = col.Data()[i]
				case "content":
					r.Content = col.Data()[i]
				case "scope":
					r.Scope = col.Data()[i]
				case "tags":
					if err := json.Unmarshal([]byte(col.Data()[i]), &r.Tags); err != nil {
						r.Tags = nil
					}
				}
			case *column.ColumnInt64:
				if col.Name() == "chunk_index" {
					r.ChunkIndex = int(col.Data()[i])
				}
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Close releases the underlying client connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

var _ VectorStore = (*MilvusStore)(nil)
