package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/geo"
	"github.com/xxxsen/bizdir/internal/model"
)

type BusinessRepo interface {
	Get(ctx context.Context, id string) (*model.Business, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Business, error)
	ListIDs(ctx context.Context) ([]string, error)
}

type SearchRequest struct {
	Query   string
	Filters Filters
	Profile *model.UserProfile
	Client  model.ClientContext
}

type SearchResult struct {
	Matches []Match `json:"matches"`
	// Location echoes the resolved anchor, nil when none resolved.
	Location *model.LocationResult `json:"location,omitempty"`
	// NeedsLocation is set when the query asked for near-me results but no
	// profile location was available to anchor them.
	NeedsLocation bool `json:"needs_location,omitempty"`
}

// SearchService glues the pipeline together: resolve anchor, embed query,
// load candidates for the current version, rank.
type SearchService struct {
	embedder   *EmbeddingService
	ranker     *Ranker
	locations  *LocationService
	businesses BusinessRepo
	embeddings EmbeddingRepo
	statuses   StatusRepo
}

func NewSearchService(embedder *EmbeddingService, ranker *Ranker, locations *LocationService,
	businesses BusinessRepo, embeddings EmbeddingRepo, statuses StatusRepo) *SearchService {
	return &SearchService{
		embedder:   embedder,
		ranker:     ranker,
		locations:  locations,
		businesses: businesses,
		embeddings: embeddings,
		statuses:   statuses,
	}
}

func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("query", req.Query))

	anchor, err := s.locations.Resolve(ctx, req.Query, req.Profile, req.Client)
	if err != nil {
		return nil, err
	}
	if anchor == nil && s.locations.HasNearMePhrase(req.Query) {
		return &SearchResult{NeedsLocation: true}, nil
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		logger.Error("embed search query failed", zap.Error(err))
		return nil, err
	}

	candidates, err := s.loadCandidates(ctx, anchor)
	if err != nil {
		return nil, err
	}
	matches := s.ranker.Rank(ctx, queryVec, candidates, req.Filters, 0)
	logger.Debug("search ranked", zap.Int("candidates", len(candidates)), zap.Int("matches", len(matches)))
	return &SearchResult{Matches: matches, Location: anchor}, nil
}

// loadCandidates joins completed embeddings with their business records,
// scoped to the anchor radius when one was resolved. Only completed-status
// ids are considered, so in-flight regenerations never surface half-done.
func (s *SearchService) loadCandidates(ctx context.Context, anchor *model.LocationResult) ([]Candidate, error) {
	version := s.embedder.Version()
	ids, err := s.statuses.ListCompletedIDs(ctx, version)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	businesses, err := s.businesses.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	embeddings, err := s.embeddings.ListByIDs(ctx, ids, version)
	if err != nil {
		return nil, err
	}
	vectors := make(map[string][]float32, len(embeddings))
	for i := range embeddings {
		vectors[embeddings[i].BusinessID] = embeddings[i].Vector
	}
	candidates := make([]Candidate, 0, len(businesses))
	for i := range businesses {
		b := &businesses[i]
		vec, ok := vectors[b.ID]
		if !ok {
			continue
		}
		if anchor != nil {
			if b.Lat == 0 && b.Lng == 0 {
				continue
			}
			if geo.HaversineM(anchor.Lat, anchor.Lng, b.Lat, b.Lng) > float64(anchor.RadiusM) {
				continue
			}
		}
		candidates = append(candidates, Candidate{Business: b, Vector: vec})
	}
	return candidates, nil
}
