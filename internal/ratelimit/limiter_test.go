package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitPacesCalls(t *testing.T) {
	clock := time.Unix(1000, 0)
	var slept []time.Duration
	l := New(time.Second)
	l.now = func() time.Time { return clock }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		clock = clock.Add(d)
		return nil
	}

	require.NoError(t, l.Wait(context.Background()))
	require.Empty(t, slept)

	clock = clock.Add(300 * time.Millisecond)
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, slept, 1)
	require.Equal(t, 700*time.Millisecond, slept[0])

	clock = clock.Add(2 * time.Second)
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, slept, 1)
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := New(time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, l.Wait(ctx), context.Canceled)
}

func TestLimiterDisabled(t *testing.T) {
	var l *Limiter
	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, New(0).Wait(context.Background()))
}
