package database

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/agenthub/knowledge-be/types"
)

const (
	localVectorsFile = "vectors.bin"
	localMetasFile   = "metas.json"
)

// fragmentMeta is one row of the metadata file, parallel to one row of the
// vector matrix. The metadata file is the source of truth; the normalized
// matrix used for search is derived from the raw vectors and can always be
// rebuilt.
type fragmentMeta struct {
	DocID      string   `json:"doc_id"`
	ChunkIndex int      `json:"chunk_index"`
	Owner      string   `json:"user_id,omitempty"`
	Title      string   `json:"title"`
	URL        string   `json:"url,omitempty"`
	Content    string   `json:"content"`
	Scope      string   `json:"scope"`
	Tags       []string `json:"tags,omitempty"`
}

// localSnapshot is an immutable generation of the index. Mutations build a
// fresh snapshot and swap the pointer, so readers never observe a
// half-rebuilt matrix.
type localSnapshot struct {
	metas      []fragmentMeta
	vectors    [][]float32 // raw, persisted
	normalized [][]float32 // unit-length, search structure
}

// LocalStore is the flat in-process vector index. All vectors live in
// memory as a dense matrix that is rebuilt on every mutation and mirrored
// to disk, so a restart reloads exact prior state. Rebuild cost is
// O(N*dim), which is fine for a single tenant's corpus.
type LocalStore struct {
	dir string
	dim int

	mu   sync.Mutex // serializes writers; readers go through snap only
	snap atomic.Pointer[localSnapshot]
}

func NewLocalStore(dir string, dim int) (*LocalStore, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", types.ErrInvalidArgument, dim)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create index dir: %v", types.ErrIndexUnavailable, err)
	}
	s := &LocalStore{dir: dir, dim: dim}
	snap, err := s.load()
	if err != nil {
		// Corrupt or partial files: start from an empty index rather than
		// refusing to boot. The catalog still knows what was ingested.
		log.Printf("Warning: resetting local vector index at %s: %v", dir, err)
		snap = &localSnapshot{}
	}
	s.snap.Store(snap)
	return s, nil
}

func (s *LocalStore) UpsertDocument(ctx context.Context, req *UpsertRequest) error {
	if err := validateUpsert(req, s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.withoutDocument(s.snap.Load(), req.DocID)
	for i, chunk := range req.Chunks {
		next.metas = append(next.metas, fragmentMeta{
			DocID:      req.DocID,
			ChunkIndex: i,
			Owner:      req.Owner,
			Title:      req.Title,
			URL:        req.URL,
			Content:    chunk,
			Scope:      req.Scope,
			Tags:       req.Tags,
		})
		vec := make([]float32, len(req.Embeddings[i]))
		copy(vec, req.Embeddings[i])
		next.vectors = append(next.vectors, vec)
		next.normalized = append(next.normalized, normalizeVector(vec))
	}

	// Persist first, swap after: a failed write leaves the previous
	// generation both in memory and on disk.
	if err := s.persist(next); err != nil {
		return err
	}
	s.snap.Store(next)
	return nil
}

func (s *LocalStore) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := s.withoutDocument(cur, docID)
	if len(next.metas) == len(cur.metas) {
		return nil // nothing to delete, idempotent
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.snap.Store(next)
	return nil
}

func (s *LocalStore) Search(ctx context.Context, queryVector []float32, topK int, owner string) ([]VectorSearchResult, error) {
	snap := s.snap.Load()
	if len(snap.metas) == 0 {
		return nil, nil
	}
	if len(queryVector) != s.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", types.ErrDimensionMismatch, len(queryVector), s.dim)
	}
	if topK < 1 {
		topK = 1
	}

	q := normalizeVector(queryVector)

	type scored struct {
		row   int
		score float32
	}
	candidates := make([]scored, 0, len(snap.metas))
	for i := range snap.metas {
		if !visibleTo(snap.metas[i].Scope, snap.metas[i].Owner, owner) {
			continue
		}
		candidates = append(candidates, scored{row: i, score: dot(snap.normalized[i], q)})
	}
	// Stable sort keeps ties in insertion order, which keeps ranking
	// deterministic across identical re-upserts.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if topK < len(candidates) {
		candidates = candidates[:topK]
	}

	results := make([]VectorSearchResult, 0, len(candidates))
	for _, c := range candidates {
		m := snap.metas[c.row]
		results = append(results, VectorSearchResult{
			DocID:      m.DocID,
			ChunkIndex: m.ChunkIndex,
			Owner:      m.Owner,
			Title:      m.Title,
			URL:        m.URL,
			Content:    m.Content,
			Score:      c.score,
			Scope:      m.Scope,
			Tags:       m.Tags,
		})
	}
	return results, nil
}

// withoutDocument copies a snapshot minus all fragments of docID.
func (s *LocalStore) withoutDocument(cur *localSnapshot, docID string) *localSnapshot {
	next := &localSnapshot{}
	for i, m := range cur.metas {
		if m.DocID == docID {
			continue
		}
		next.metas = append(next.metas, m)
		next.vectors = append(next.vectors, cur.vectors[i])
		next.normalized = append(next.normalized, cur.normalized[i])
	}
	return next
}

func (s *LocalStore) persist(snap *localSnapshot) error {
	metasPath := filepath.Join(s.dir, localMetasFile)
	vectorsPath := filepath.Join(s.dir, localVectorsFile)

	if len(snap.metas) == 0 {
		os.Remove(metasPath)
		os.Remove(vectorsPath)
		return nil
	}

	metas, err := json.Marshal(snap.metas)
	if err != nil {
		return fmt.Errorf("failed to encode index metadata: %w", err)
	}

	buf := make([]byte, 0, len(snap.vectors)*s.dim*4)
	scratch := make([]byte, 4)
	for _, vec := range snap.vectors {
		for _, x := range vec {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(x))
			buf = append(buf, scratch...)
		}
	}

	// Write both files via rename so readers of the directory never see a
	// torn generation.
	if err := writeFileAtomic(vectorsPath, buf); err != nil {
		return fmt.Errorf("failed to persist vector matrix: %w", err)
	}
	if err := writeFileAtomic(metasPath, metas); err != nil {
		return fmt.Errorf("failed to persist index metadata: %w", err)
	}
	return nil
}

func (s *LocalStore) load() (*localSnapshot, error) {
	metasPath := filepath.Join(s.dir, localMetasFile)
	vectorsPath := filepath.Join(s.dir, localVectorsFile)

	metasRaw, err := os.ReadFile(metasPath)
	if os.IsNotExist(err) {
		return &localSnapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	var metas []fragmentMeta
	if err := json.Unmarshal(metasRaw, &metas); err != nil {
		return nil, fmt.Errorf("corrupt metadata file: %w", err)
	}

	vectorsRaw, err := os.ReadFile(vectorsPath)
	if err != nil {
		return nil, err
	}
	if len(vectorsRaw) != len(metas)*s.dim*4 {
		return nil, fmt.Errorf("vector matrix size %d does not match %d fragments of dimension %d", len(vectorsRaw), len(metas), s.dim)
	}

	snap := &localSnapshot{metas: metas}
	for i := 0; i < len(metas); i++ {
		vec := make([]float32, s.dim)
		for j := 0; j < s.dim; j++ {
			bits := binary.LittleEndian.Uint32(vectorsRaw[(i*s.dim+j)*4:])
			vec[j] = math.Float32frombits(bits)
		}
		snap.vectors = append(snap.vectors, vec)
		snap.normalized = append(snap.normalized, normalizeVector(vec))
	}
	return snap, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

var _ VectorStore = (*LocalStore)(nil)
