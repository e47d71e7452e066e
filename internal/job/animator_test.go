package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"before start", -time.Second, 0},
		{"at start", 0, 0},
		{"halfway eases out", 500 * time.Millisecond, 87.5},
		{"at end", time.Second, 100},
		{"after end", 2 * time.Second, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Interpolate(0, 100, tt.elapsed, time.Second), 1e-9)
		})
	}

	assert.Equal(t, 40.0, Interpolate(10, 40, time.Millisecond, 0))
}

func TestAnimator_FollowsLatestTarget(t *testing.T) {
	base := time.Unix(0, 0)
	now := base
	a := NewAnimator(time.Second, time.Millisecond)
	a.now = func() time.Time { return now }

	a.SetTarget(40)
	assert.Equal(t, 0.0, a.Value())

	now = base.Add(time.Second)
	assert.Equal(t, 40.0, a.Value())

	// Retarget midway: the new transition starts from the current value.
	a.SetTarget(80)
	now = now.Add(500 * time.Millisecond)
	v := a.Value()
	assert.Greater(t, v, 40.0)
	assert.Less(t, v, 80.0)

	a.Jump(100)
	assert.Equal(t, 100.0, a.Value())
}

func TestAnimator_RunStopsOnCancel(t *testing.T) {
	a := NewAnimator(10*time.Millisecond, time.Millisecond)
	a.SetTarget(50)

	var mu sync.Mutex
	var values []float64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, func(v float64) {
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(values) > 0 && values[len(values)-1] == 50
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("animator did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
	}
}
