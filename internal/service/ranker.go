package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/bizdir/internal/model"
	"github.com/xxxsen/bizdir/internal/vectormath"
)

const (
	DefaultMaxCandidates = 200
	defaultSimCacheSize  = 2048
	// simKeyPrefixLen values of the query vector go into the memo key; the
	// full vector would make keys enormous for no extra discrimination.
	simKeyPrefixLen = 8
)

type Candidate struct {
	Business *model.Business
	Vector   []float32
}

type Match struct {
	BusinessID string  `json:"business_id"`
	Score      float32 `json:"score"`
}

type Filters struct {
	Category  string  `json:"category,omitempty"`
	City      string  `json:"city,omitempty"`
	MinRating float64 `json:"min_rating,omitempty"`
}

// Ranker scores pre-filtered candidates against a query vector. The
// similarity memo is insert-if-room: once full it stops accepting new
// keys instead of evicting.
type Ranker struct {
	maxCandidates int

	simMu       sync.RWMutex
	simCache    map[string]float32
	simCacheCap int
}

func NewRanker(maxCandidates int) *Ranker {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Ranker{
		maxCandidates: maxCandidates,
		simCache:      make(map[string]float32),
		simCacheCap:   defaultSimCacheSize,
	}
}

func (f Filters) match(b *model.Business) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, b.Category) {
		return false
	}
	if f.City != "" && !strings.EqualFold(f.City, b.City) {
		return false
	}
	if f.MinRating > 0 && b.Rating < f.MinRating {
		return false
	}
	return true
}

// Rank filters, truncates to maxCandidates, then scores. Truncation happens
// before scoring, so the result is bounded-cost and may miss a better match
// past the cutoff. Ties keep input order.
func (r *Ranker) Rank(ctx context.Context, queryVec []float32, candidates []Candidate, f Filters, maxCandidates int) []Match {
	if maxCandidates <= 0 {
		maxCandidates = r.maxCandidates
	}
	filtered := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Business == nil || len(c.Vector) == 0 {
			continue
		}
		if f.match(c.Business) {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) > maxCandidates {
		filtered = filtered[:maxCandidates]
	}

	prefix := simKeyPrefix(queryVec)
	matches := make([]Match, 0, len(filtered))
	for _, c := range filtered {
		score, ok := r.cachedScore(prefix, c.Business.ID)
		if !ok {
			var err error
			score, err = vectormath.CosineSimilarity(queryVec, c.Vector)
			if err != nil {
				logutil.GetLogger(ctx).Warn("skip unscorable candidate",
					zap.String("business_id", c.Business.ID), zap.Error(err))
				continue
			}
			r.storeScore(prefix, c.Business.ID, score)
		}
		matches = append(matches, Match{BusinessID: c.Business.ID, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

func simKeyPrefix(vec []float32) string {
	n := simKeyPrefixLen
	if len(vec) < n {
		n = len(vec)
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "%.6f,", vec[i])
	}
	return sb.String()
}

func (r *Ranker) cachedScore(prefix, businessID string) (float32, bool) {
	r.simMu.RLock()
	defer r.simMu.RUnlock()
	score, ok := r.simCache[prefix+businessID]
	return score, ok
}

func (r *Ranker) storeScore(prefix, businessID string, score float32) {
	r.simMu.Lock()
	defer r.simMu.Unlock()
	key := prefix + businessID
	if _, exists := r.simCache[key]; exists {
		return
	}
	if len(r.simCache) >= r.simCacheCap {
		return
	}
	r.simCache[key] = score
}
