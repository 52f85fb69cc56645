package ai

import (
	"context"

	"github.com/xxxsen/bizdir/internal/ratelimit"
)

// WrapRateLimit paces every Embed call through the given limiter. The
// embedding provider enforces per-key quotas upstream; staying under them
// here turns would-be 429 retries into a short local wait.
func WrapRateLimit(p IEmbedProvider, limiter *ratelimit.Limiter) IEmbedProvider {
	if p == nil || limiter == nil {
		return p
	}
	return &throttledProvider{next: p, limiter: limiter}
}

type throttledProvider struct {
	next    IEmbedProvider
	limiter *ratelimit.Limiter
}

func (t *throttledProvider) Name() string {
	return t.next.Name()
}

func (t *throttledProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Embed(ctx, model, text, taskType)
}
