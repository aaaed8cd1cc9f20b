package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_ZeroIntervalDoesNotBlock(t *testing.T) {
	p := NewPacer(0, 0)
	start := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := NewPacer(20*time.Millisecond, 0)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	// First call is immediate, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestPacer_Cooldown(t *testing.T) {
	var slept time.Duration
	p := NewPacer(0, 5*time.Second, WithSleep(func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}))
	require.NoError(t, p.Cooldown(context.Background()))
	assert.Equal(t, 5*time.Second, slept)
}

func TestPacer_CooldownCancelled(t *testing.T) {
	p := NewPacer(0, time.Second, WithSleep(func(_ context.Context, _ time.Duration) error {
		return context.Canceled
	}))
	err := p.Cooldown(context.Background())
	assert.True(t, errors.Is(err, context.Canceled))
}
