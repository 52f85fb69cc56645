package model

const (
	EmbeddingStatusPending    = "pending"
	EmbeddingStatusProcessing = "processing"
	EmbeddingStatusCompleted  = "completed"
	EmbeddingStatusFailed     = "failed"
	EmbeddingStatusRetrying   = "retrying"
)

// BusinessEmbedding is the stored vector for one business under one model
// version. Rows are only ever fully overwritten, never patched.
type BusinessEmbedding struct {
	BusinessID string    `json:"business_id"`
	Version    string    `json:"version"`
	Vector     []float32 `json:"vector"`
	SourceText string    `json:"source_text"`
	Mtime      int64     `json:"mtime"`
}

// EmbeddingStatus is the diagnostic sidecar of BusinessEmbedding. It is
// best-effort: the vector row, not this record, is authoritative.
type EmbeddingStatus struct {
	BusinessID    string `json:"business_id"`
	Version       string `json:"version"`
	Status        string `json:"status"`
	HasEmbedding  bool   `json:"has_embedding"`
	LastGenerated int64  `json:"last_generated"`
	Mtime         int64  `json:"mtime"`
	Error         string `json:"error"`
	Attempts      int    `json:"attempts"`
}
