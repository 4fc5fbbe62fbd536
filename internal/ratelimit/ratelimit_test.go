package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitConsumesBurst(t *testing.T) {
	l := NewWithBurst(0.001, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Burst tokens are handed out without blocking, even on a done context.
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	assert.ErrorIs(t, l.Wait(ctx), context.Canceled, "burst exhausted")
}

func TestWaitRespectsCancellation(t *testing.T) {
	l := NewWithBurst(0.001, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokensRefillOverTime(t *testing.T) {
	l := NewWithBurst(100, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// At 100 rps a token is back within ~10ms.
	assert.NoError(t, l.Wait(ctx))
}

func TestNonPositiveRateDefaults(t *testing.T) {
	l := New(-5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, l.Wait(ctx), "defaulted rate still grants the first token")
}
