package types

// Visibility scopes for a document.
const (
	ScopeGlobal  = "global"
	ScopePrivate = "private"
)

// Origins a document can be ingested from.
const (
	SourceUpload = "upload"
	SourceWeb    = "web"
	SourceSync   = "sync"
)

// Document is the catalog record for one ingested knowledge document.
// Fragments and vectors live in the vector store; this record carries
// the metadata and the embedding fingerprint the fragments were built with.
type Document struct {
	DocID     string   `bson:"_id" json:"doc_id"`
	Owner     string   `bson:"owner,omitempty" json:"owner,omitempty"`
	Title     string   `bson:"title" json:"title"`
	Source    string   `bson:"source" json:"source"`
	URL       string   `bson:"url,omitempty" json:"url,omitempty"`
	Tags      []string `bson:"tags" json:"tags"`
	Scope     string   `bson:"scope" json:"scope"`
	IsDeleted bool     `bson:"is_deleted" json:"is_deleted"`
	CreatedAt int64    `bson:"created_at" json:"created_at"`
	UpdatedAt int64    `bson:"updated_at" json:"updated_at"`

	EmbedProvider string      `bson:"embed_provider" json:"embed_provider"`
	EmbedModel    string      `bson:"embed_model" json:"embed_model"`
	EmbedDim      int         `bson:"embed_dim" json:"embed_dim"`
	EmbedVersion  int         `bson:"embed_version" json:"embed_version"`
	SplitParams   SplitParams `bson:"split_params" json:"split_params"`
}

// SplitParams records the chunking budget a document was split with.
type SplitParams struct {
	TargetTokens    int `bson:"target_tokens" json:"target_tokens"`
	MaxTokens       int `bson:"max_tokens" json:"max_tokens"`
	SentenceOverlap int `bson:"sentence_overlap" json:"sentence_overlap"`
}

// IngestRequest carries one document into the retrieval pipeline.
// DocID is empty for a fresh ingest; supplying an existing id replaces
// that document's fragments atomically.
type IngestRequest struct {
	DocID   string   `json:"doc_id,omitempty"`
	Owner   string   `json:"owner,omitempty"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Source  string   `json:"source,omitempty"`
	URL     string   `json:"url,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Scope   string   `json:"scope,omitempty"`
}

// SearchHit is one ranked fragment returned from a similarity query.
// Score is the normalized 0-100 similarity; raw backend scores stay
// backend-internal.
type SearchHit struct {
	DocID      string   `json:"doc_id"`
	ChunkIndex int      `json:"chunk_index"`
	Title      string   `json:"title"`
	URL        string   `json:"url,omitempty"`
	Snippet    string   `json:"snippet"`
	Score      int      `json:"score"`
	Content    string   `json:"content"`
	Scope      string   `json:"scope"`
	Tags       []string `json:"tags,omitempty"`
}
