package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agenthub/knowledge-be/config"
	"github.com/agenthub/knowledge-be/database"
	"github.com/agenthub/knowledge-be/repository"
	"github.com/agenthub/knowledge-be/types"
)

// RetrievalService ties the pipeline together: split a document into
// fragments, embed them, store vectors and catalog metadata, and answer
// similarity queries with ranked snippets.
type RetrievalService interface {
	Ingest(ctx context.Context, req *types.IngestRequest) (*types.Document, error)
	Search(ctx context.Context, query string, topK int, owner string) ([]types.SearchHit, error)
	DeleteDocument(ctx context.Context, docID string, owner string) error
	ListDocuments(ctx context.Context, owner string) ([]*types.Document, error)
}

type retrievalService struct {
	chunker      *ChunkService
	embedder     EmbeddingService
	store        database.VectorStore
	catalog      repository.DocumentRepo
	splitParams  types.SplitParams
	defaultTopK  int
	maxResults   int
	snippetLimit int
}

// NewRetrievalService wires the pipeline. Store and catalog may each be
// nil when their backend is disabled; affected operations degrade to
// warnings instead of failing.
func NewRetrievalService(
	cfg *config.Config,
	chunker *ChunkService,
	embedder EmbeddingService,
	store database.VectorStore,
	catalog repository.DocumentRepo,
) RetrievalService {
	svc := &retrievalService{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		catalog:  catalog,
		splitParams: types.SplitParams{
			TargetTokens:    cfg.Split.TargetTokens,
			MaxTokens:       cfg.Split.MaxTokens,
			SentenceOverlap: cfg.Split.SentenceOverlap,
		},
		defaultTopK:  cfg.Search.TopK,
		maxResults:   cfg.Search.ScanLimit,
		snippetLimit: cfg.Search.SnippetLimit,
	}
	if svc.defaultTopK <= 0 {
		svc.defaultTopK = 5
	}
	if svc.snippetLimit <= 0 {
		svc.snippetLimit = 200
	}
	return svc
}

// Ingest splits, embeds and stores one document. Supplying the doc id of
// an existing document replaces its fragments as one unit; readers never
// observe a mix of old and new fragments.
func (s *retrievalService) Ingest(ctx context.Context, req *types.IngestRequest) (*types.Document, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", types.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", types.ErrInvalidArgument)
	}
	scope, err := resolveScope(req.Scope, req.Owner)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(req.Content)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no fragments", types.ErrInvalidArgument)
	}

	embeddings, err := s.embedder.Encode(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d fragments", types.ErrEmbeddingFailed, len(embeddings), len(chunks))
	}
	dim := len(embeddings[0])

	docID := req.DocID
	var existing *types.Document
	if docID == "" {
		docID = uuid.NewString()
	} else if s.catalog != nil {
		existing, err = s.catalog.GetDocument(ctx, docID)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("failed to load document %s: %w", docID, err)
		}
		if existing != nil {
			if existing.Owner != req.Owner {
				return nil, fmt.Errorf("%w: document %s", types.ErrNotFound, docID)
			}
			if existing.EmbedDim != 0 && existing.EmbedDim != dim {
				return nil, fmt.Errorf("%w: document %s was embedded with dimension %d, got %d",
					types.ErrDimensionMismatch, docID, existing.EmbedDim, dim)
			}
		}
	}

	source := req.Source
	if source == "" {
		source = types.SourceUpload
	}

	if s.store != nil {
		upsert := &database.UpsertRequest{
			DocID:      docID,
			Owner:      req.Owner,
			Title:      req.Title,
			URL:        req.URL,
			Scope:      scope,
			Tags:       req.Tags,
			Chunks:     chunks,
			Embeddings: embeddings,
		}
		if err := s.store.UpsertDocument(ctx, upsert); err != nil {
			return nil, err
		}
	} else {
		log.Printf("vector store disabled, skipping fragment storage for document %s", docID)
	}

	now := time.Now().Unix()
	doc := &types.Document{
		DocID:         docID,
		Owner:         req.Owner,
		Title:         req.Title,
		Source:        source,
		URL:           req.URL,
		Tags:          req.Tags,
		Scope:         scope,
		CreatedAt:     now,
		UpdatedAt:     now,
		EmbedProvider: s.embedder.Provider(),
		EmbedModel:    s.embedder.Model(),
		EmbedDim:      dim,
		EmbedVersion:  1,
		SplitParams:   s.splitParams,
	}
	if existing != nil {
		doc.CreatedAt = existing.CreatedAt
		doc.EmbedVersion = existing.EmbedVersion + 1
	}

	if s.catalog != nil {
		if existing != nil {
			err = s.catalog.UpdateDocument(ctx, doc)
		} else {
			err = s.catalog.CreateDocument(ctx, doc)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save document %s: %w", docID, err)
		}
	}
	return doc, nil
}

// Search embeds the query and returns up to topK fragments visible to
// owner, best first. A blank query matches nothing.
func (s *retrievalService) Search(ctx context.Context, query string, topK int, owner string) ([]types.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if s.store == nil {
		log.Println("vector store disabled, search returns no results")
		return nil, nil
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if s.maxResults > 0 && topK > s.maxResults {
		topK = s.maxResults
	}

	vectors, err := s.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for query", types.ErrEmbeddingFailed, len(vectors))
	}

	results, err := s.store.Search(ctx, vectors[0], topK, owner)
	if err != nil {
		return nil, err
	}

	hits := make([]types.SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, types.SearchHit{
			DocID:      r.DocID,
			ChunkIndex: r.ChunkIndex,
			Title:      r.Title,
			URL:        r.URL,
			Snippet:    makeSnippet(r.Content, s.snippetLimit),
			Score:      normalizeScore(r.Score),
			Content:    r.Content,
			Scope:      r.Scope,
			Tags:       r.Tags,
		})
	}
	return hits, nil
}

// DeleteDocument removes a document's fragments and soft-deletes its
// catalog record. Owned documents can only be deleted by their owner.
// Unowned global documents may be deleted by any caller; restricting
// them is the job of whatever authorization layer sits in front of
// this service.
func (s *retrievalService) DeleteDocument(ctx context.Context, docID string, owner string) error {
	if strings.TrimSpace(docID) == "" {
		return fmt.Errorf("%w: doc id is required", types.ErrInvalidArgument)
	}

	if s.catalog != nil {
		doc, err := s.catalog.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Owner != "" && doc.Owner != owner {
			return fmt.Errorf("%w: document %s", types.ErrNotFound, docID)
		}
	}

	if s.store != nil {
		if err := s.store.DeleteDocument(ctx, docID); err != nil {
			return err
		}
	}

	if s.catalog != nil {
		if err := s.catalog.SoftDeleteDocument(ctx, docID, time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

func (s *retrievalService) ListDocuments(ctx context.Context, owner string) ([]*types.Document, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.ListDocuments(ctx, owner)
}

func resolveScope(scope, owner string) (string, error) {
	switch scope {
	case "":
		if owner == "" {
			return types.ScopeGlobal, nil
		}
		return types.ScopePrivate, nil
	case types.ScopeGlobal:
		return types.ScopeGlobal, nil
	case types.ScopePrivate:
		if owner == "" {
			return "", fmt.Errorf("%w: private documents require an owner", types.ErrInvalidArgument)
		}
		return types.ScopePrivate, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", types.ErrInvalidArgument, scope)
	}
}

// makeSnippet collapses runs of whitespace and truncates to limit runes,
// appending an ellipsis when content was cut.
func makeSnippet(content string, limit int) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	return string(runes[:limit]) + "…"
}

// normalizeScore maps a raw backend similarity to an integer from 0 to
// 100. Backends report cosine similarity in [-1, 1], though float32
// rounding can land a self-match a fraction above 1; clamping after the
// scale keeps such matches at 100.
func normalizeScore(raw float32) int {
	v := float64(raw) * 100
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return int(v + 0.5)
}
