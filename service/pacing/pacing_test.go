package pacing

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_Delay(t *testing.T) {
	p := New(DefaultConfig(), WithRand(rand.New(rand.NewPCG(1, 2))))
	testCases := []struct {
		description string
		total       uint64
		min, max    time.Duration
	}{
		{description: "no cooldown", total: 7},
		{description: "first probe", total: 0},
		{description: "every 10", total: 20, min: 10 * time.Second, max: 15 * time.Second},
		{description: "every 50", total: 150, min: 15 * time.Second, max: 30 * time.Second},
		{description: "every 100", total: 300, min: 90 * time.Second, max: 120 * time.Second},
		{description: "every 500", total: 1500, min: 5 * time.Minute, max: 10 * time.Minute},
		{description: "every 1000 wins", total: 2000, min: 15 * time.Minute, max: 30 * time.Minute},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				base, cooldown := p.Delay(testCase.total)
				assert.GreaterOrEqual(t, base, 2500*time.Millisecond)
				assert.Less(t, base, 4500*time.Millisecond)
				if testCase.max == 0 {
					assert.Zero(t, cooldown)
					continue
				}
				assert.GreaterOrEqual(t, cooldown, testCase.min)
				assert.Less(t, cooldown, testCase.max)
			}
		})
	}
}

func TestPacer_TierOrderIndependent(t *testing.T) {
	config := DefaultConfig()
	config.Tiers = []Tier{
		{Every: 10, Min: time.Second, Max: time.Second},
		{Every: 100, Min: time.Minute, Max: time.Minute},
	}
	_, cooldown := New(config).Delay(100)
	assert.Equal(t, time.Minute, cooldown)
}

func TestPacer_Wait(t *testing.T) {
	var slept []time.Duration
	p := New(DefaultConfig(), WithSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))
	require.NoError(t, p.Wait(context.Background(), 3))
	require.Len(t, slept, 1)
	require.NoError(t, p.Wait(context.Background(), 10))
	require.Len(t, slept, 3)
	assert.GreaterOrEqual(t, slept[2], 10*time.Second)
}

func TestPacer_PauseSkipsCooldown(t *testing.T) {
	var slept []time.Duration
	p := New(DefaultConfig(), WithSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Pause(context.Background()))
	}
	require.Len(t, slept, 3)
	for _, d := range slept {
		assert.GreaterOrEqual(t, d, 2500*time.Millisecond)
		assert.Less(t, d, 4500*time.Millisecond)
	}
}

func TestPacer_WaitCancelled(t *testing.T) {
	p := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, p.Wait(ctx, 1), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacer_RateCeiling(t *testing.T) {
	p := New(Config{MaxPerSecond: 20})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Wait(ctx, uint64(i)))
	}
	// One token up front, then one every 50ms.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestZero(t *testing.T) {
	start := time.Now()
	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, Zero().Wait(context.Background(), i))
	}
	assert.Less(t, time.Since(start), time.Second)
}
