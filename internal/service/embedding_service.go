package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/ai"
	"github.com/xxxsen/bizdir/internal/embedcache"
	"github.com/xxxsen/bizdir/internal/model"
	appErr "github.com/xxxsen/bizdir/internal/pkg/errors"
)

// maxSourceTextLen bounds the canonical business text sent to the embedding
// model. Longer descriptions get cut with a trailing ellipsis marker.
const maxSourceTextLen = 1000

// dimCacheTTL bounds how long a sampled catalog dimension is trusted, so a
// regenerated catalog is picked up without a restart.
const dimCacheTTL = 5 * time.Minute

// Known output dimensions per model, used when the catalog is still empty
// and no record can be sampled.
var modelDims = map[string]int{
	"gemini-embedding-001":   3072,
	"text-embedding-004":     768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

type EmbeddingRepo interface {
	Save(ctx context.Context, emb *model.BusinessEmbedding) error
	Get(ctx context.Context, businessID, version string) (*model.BusinessEmbedding, error)
	ListByIDs(ctx context.Context, ids []string, version string) ([]model.BusinessEmbedding, error)
	SampleVectorDim(ctx context.Context, version string) (int, error)
}

type StatusRepo interface {
	Upsert(ctx context.Context, st *model.EmbeddingStatus) error
	Get(ctx context.Context, businessID, version string) (*model.EmbeddingStatus, error)
	ListCompletedIDs(ctx context.Context, version string) ([]string, error)
	CountByStatus(ctx context.Context, version string) (map[string]int, error)
}

// EmbeddingService turns businesses and queries into vectors and guards the
// one invariant everything downstream depends on: every vector compared
// together has the catalog's dimension.
type EmbeddingService struct {
	provider   ai.IEmbedProvider
	modelID    string
	version    string
	embeddings EmbeddingRepo
	statuses   StatusRepo
	queryCache *embedcache.QueryCache

	dimMu      sync.Mutex
	dim        int
	dimFetched time.Time
	now        func() time.Time
}

func NewEmbeddingService(provider ai.IEmbedProvider, modelID, version string,
	embeddings EmbeddingRepo, statuses StatusRepo, queryCache *embedcache.QueryCache) *EmbeddingService {
	return &EmbeddingService{
		provider:   provider,
		modelID:    modelID,
		version:    version,
		embeddings: embeddings,
		statuses:   statuses,
		queryCache: queryCache,
		now:        time.Now,
	}
}

func (s *EmbeddingService) Version() string {
	return s.version
}

// BuildBusinessText builds the canonical embedding input for a business:
// name, description, category, subcategory and tags, empty segments
// omitted, truncated to maxSourceTextLen.
func BuildBusinessText(b *model.Business) string {
	var segments []string
	if v := strings.TrimSpace(b.Name); v != "" {
		segments = append(segments, v)
	}
	if v := strings.TrimSpace(b.Description); v != "" {
		segments = append(segments, v)
	}
	if v := strings.TrimSpace(b.Category); v != "" {
		segments = append(segments, "Category: "+v)
	}
	if v := strings.TrimSpace(b.Subcategory); v != "" {
		segments = append(segments, "Subcategory: "+v)
	}
	var tags []string
	for _, tag := range b.Tags {
		if t := strings.TrimSpace(tag); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > 0 {
		segments = append(segments, "Tags: "+strings.Join(tags, ", "))
	}
	text := strings.Join(segments, "\n")
	if text == "" {
		text = b.Name
	}
	if runes := []rune(text); len(runes) > maxSourceTextLen {
		// Cut on a rune boundary: a byte slice here would split multi-byte
		// characters and feed the provider invalid UTF-8.
		text = string(runes[:maxSourceTextLen-3]) + "..."
	}
	return text
}

// ExpectedDim returns the catalog's established dimension: a sampled stored
// record when one exists, the model table otherwise, 0 when unknown (the
// first generated vector then establishes it).
func (s *EmbeddingService) ExpectedDim(ctx context.Context) int {
	s.dimMu.Lock()
	defer s.dimMu.Unlock()
	if s.dim > 0 && s.now().Sub(s.dimFetched) < dimCacheTTL {
		return s.dim
	}
	if dim, err := s.embeddings.SampleVectorDim(ctx, s.version); err == nil && dim > 0 {
		s.dim = dim
		s.dimFetched = s.now()
		return dim
	} else if err != nil && !appErr.IsNotFound(err) {
		logutil.GetLogger(ctx).Warn("sample catalog dimension failed", zap.Error(err))
	}
	if dim, ok := modelDims[s.modelID]; ok {
		s.dim = dim
		s.dimFetched = s.now()
		return dim
	}
	return 0
}

func (s *EmbeddingService) establishDim(dim int) {
	s.dimMu.Lock()
	defer s.dimMu.Unlock()
	if s.dim == 0 {
		s.dim = dim
		s.dimFetched = s.now()
	}
}

func (s *EmbeddingService) validateVector(ctx context.Context, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: provider returned empty vector", appErr.ErrInvalid)
	}
	want := s.ExpectedDim(ctx)
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", appErr.ErrDimensionMismatch, len(vec), want)
	}
	if want == 0 {
		s.establishDim(len(vec))
	}
	return nil
}

// GenerateForBusiness builds the canonical text, fetches the vector and
// fully overwrites the stored record. A wrong-length vector is fatal and is
// never stored; any other provider failure is transient and retryable by
// the queue.
func (s *EmbeddingService) GenerateForBusiness(ctx context.Context, b *model.Business) error {
	text := BuildBusinessText(b)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: business %s has no embeddable text", appErr.ErrInvalid, b.ID)
	}
	vec, err := s.provider.Embed(ctx, s.modelID, text, ai.TaskTypeDocument)
	if err != nil {
		return err
	}
	if err := s.validateVector(ctx, vec); err != nil {
		return err
	}
	return s.embeddings.Save(ctx, &model.BusinessEmbedding{
		BusinessID: b.ID,
		Version:    s.version,
		Vector:     vec,
		SourceText: text,
		Mtime:      s.now().Unix(),
	})
}

// EmbedQuery returns a vector for the free-text query, cache first. The
// cache write-through after a miss is fire-and-forget: losing it never
// fails the search.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	normalized := embedcache.NormalizeQuery(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty query", appErr.ErrInvalid)
	}
	wantDim := s.ExpectedDim(ctx)
	if vec, ok := s.queryCache.Get(ctx, normalized, wantDim); ok {
		return vec, nil
	}
	vec, err := s.provider.Embed(ctx, s.modelID, normalized, ai.TaskTypeQuery)
	if err != nil {
		return nil, err
	}
	if err := s.validateVector(ctx, vec); err != nil {
		return nil, err
	}
	go func() {
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.queryCache.Put(wctx, normalized, vec); err != nil {
			logutil.GetLogger(wctx).Warn("cache query embedding failed", zap.Error(err))
		}
	}()
	return vec, nil
}

type EmbeddingStats struct {
	Version string         `json:"version"`
	Total   int            `json:"total"`
	Counts  map[string]int `json:"counts"`
}

// Stats reports status counts for the given model version, defaulting to
// the configured current one.
func (s *EmbeddingService) Stats(ctx context.Context, version string) (*EmbeddingStats, error) {
	if version == "" {
		version = s.version
	}
	counts, err := s.statuses.CountByStatus(ctx, version)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return &EmbeddingStats{Version: version, Total: total, Counts: counts}, nil
}
