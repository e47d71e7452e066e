package job

import (
	"context"
	"sync"
	"time"
)

// Animator interpolates a displayed value toward a moving target over a
// bounded duration. It knows nothing about polling: callers push targets with
// SetTarget and Run emits intermediate values on a frame ticker until its
// context is cancelled.
type Animator struct {
	duration time.Duration
	frame    time.Duration
	now      func() time.Time

	mu      sync.Mutex
	from    float64
	target  float64
	current float64
	startAt time.Time
}

// NewAnimator returns an animator at 0. Non-positive durations fall back to
// 600ms per transition and 50ms per frame.
func NewAnimator(duration, frame time.Duration) *Animator {
	if duration <= 0 {
		duration = 600 * time.Millisecond
	}
	if frame <= 0 {
		frame = 50 * time.Millisecond
	}
	return &Animator{duration: duration, frame: frame, now: time.Now}
}

// SetTarget starts a new transition from the current value to v.
func (a *Animator) SetTarget(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if v == a.target {
		return
	}
	a.from = a.valueLocked(a.now())
	a.target = v
	a.startAt = a.now()
}

// Jump sets the value immediately with no transition.
func (a *Animator) Jump(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.from, a.target, a.current = v, v, v
	a.startAt = time.Time{}
}

// Value returns the current interpolated value.
func (a *Animator) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valueLocked(a.now())
}

func (a *Animator) valueLocked(now time.Time) float64 {
	if a.startAt.IsZero() {
		a.current = a.target
		return a.current
	}
	a.current = Interpolate(a.from, a.target, now.Sub(a.startAt), a.duration)
	return a.current
}

// Run emits the interpolated value every frame while it differs from the
// last emitted value. It returns when ctx is done.
func (a *Animator) Run(ctx context.Context, emit func(float64)) {
	ticker := time.NewTicker(a.frame)
	defer ticker.Stop()

	last := -1.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v := a.Value()
			if v != last {
				last = v
				emit(v)
			}
		}
	}
}

// Interpolate eases from toward to over duration using a cubic ease-out.
func Interpolate(from, to float64, elapsed, duration time.Duration) float64 {
	if duration <= 0 || elapsed >= duration {
		return to
	}
	if elapsed <= 0 {
		return from
	}
	t := float64(elapsed) / float64(duration)
	inv := 1 - t
	eased := 1 - inv*inv*inv
	return from + (to-from)*eased
}
