package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPacerDelayRange(t *testing.T) {
	p := NewPacer(10*time.Millisecond, 20*time.Millisecond, 0)
	for i := 0; i < 100; i++ {
		d := p.Delay()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}

	fixed := NewPacer(5*time.Millisecond, 5*time.Millisecond, 0)
	assert.Equal(t, 5*time.Millisecond, fixed.Delay())
}

func TestPacerWaitCancelled(t *testing.T) {
	p := NewPacer(time.Hour, time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacerRateLimit(t *testing.T) {
	// 600 per minute is one every 100ms after the initial burst of one.
	p := NewPacer(0, 0, 600)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		assert.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}
