package model

const (
	PriorityCreate     = 1
	PriorityRegenerate = 2
)

// EmbeddingJob lives in process memory only; the queue mirrors snapshots to
// the generic cache for post-crash visibility, never for recovery.
type EmbeddingJob struct {
	BusinessID  string `json:"business_id"`
	Version     string `json:"version"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
	Error       string `json:"error"`
	RetryAfter  int64  `json:"retry_after"`
	// Refresh records a forced enqueue that arrived while the job was
	// already generating; the queue runs it once more after it settles.
	Refresh bool `json:"refresh,omitempty"`
}
