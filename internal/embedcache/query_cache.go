package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/cache"
)

// entry is what goes over the generic cache for one normalized query.
type entry struct {
	NormalizedQuery string    `json:"normalized_query"`
	Vector          []float32 `json:"vector"`
	ModelID         string    `json:"model_id"`
	Ctime           int64     `json:"ctime"`
	ExpiresAt       int64     `json:"expires_at"`
}

// QueryCache memoizes query text → vector so repeated searches skip the
// embedding provider. Keys are content hashes of the normalized query, so
// queries differing only in case or whitespace share one entry.
type QueryCache struct {
	store   cache.Cache
	modelID string
	ttl     time.Duration
}

func NewQueryCache(store cache.Cache, modelID string, ttl time.Duration) *QueryCache {
	return &QueryCache{store: store, modelID: modelID, ttl: ttl}
}

// NormalizeQuery trims, lowercases and collapses internal whitespace.
// Idempotent: normalizing twice yields the same string.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (c *QueryCache) Key(query string) string {
	normalized := NormalizeQuery(query)
	hash := sha256.Sum256([]byte(normalized))
	return "qemb:" + c.modelID + ":" + hex.EncodeToString(hash[:])
}

// Get returns the cached vector for query. wantDim > 0 additionally demands
// that dimension; a mismatching entry is reported as a miss so the caller
// regenerates instead of comparing incompatible vectors.
func (c *QueryCache) Get(ctx context.Context, query string, wantDim int) ([]float32, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}
	raw, ok := c.store.Get(ctx, c.Key(query))
	if !ok {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logutil.GetLogger(ctx).Warn("drop undecodable query embedding entry", zap.Error(err))
		return nil, false
	}
	if e.ExpiresAt > 0 && time.Now().Unix() >= e.ExpiresAt {
		return nil, false
	}
	if wantDim > 0 && len(e.Vector) != wantDim {
		logutil.GetLogger(ctx).Warn("query embedding cache dimension mismatch, regenerating",
			zap.Int("cached_dim", len(e.Vector)), zap.Int("want_dim", wantDim))
		return nil, false
	}
	return e.Vector, true
}

// Put stores the vector under the normalized-query key. Failures are the
// caller's to log; losing a cache write never loses a search.
func (c *QueryCache) Put(ctx context.Context, query string, vector []float32) error {
	if c == nil || c.store == nil {
		return nil
	}
	now := time.Now()
	e := entry{
		NormalizedQuery: NormalizeQuery(query),
		Vector:          vector,
		ModelID:         c.modelID,
		Ctime:           now.Unix(),
		ExpiresAt:       now.Add(c.ttl).Unix(),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.Key(query), raw, c.ttl)
}
