package kanban

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AfterFunc schedules f after d and returns a func that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// throttle runs at most one call per window. The first call in a window
// runs at once; later calls replace each other and the last one runs when
// the window ends. A zero window runs every call.
type throttle struct {
	lim   *rate.Limiter
	now   func() time.Time
	after AfterFunc
	every time.Duration

	mu      sync.Mutex
	pending func()
	stop    func() bool
}

func newThrottle(window time.Duration, now func() time.Time, after AfterFunc) *throttle {
	lim := rate.NewLimiter(rate.Inf, 1)
	if window > 0 {
		lim = rate.NewLimiter(rate.Every(window), 1)
	}
	return &throttle{lim: lim, now: now, after: after, every: window}
}

// do runs fn now and reports true, or defers it to the end of the window
// and reports false.
func (t *throttle) do(fn func() bool) bool {
	t.mu.Lock()
	now := t.now()
	if t.lim.AllowN(now, 1) {
		t.cancelLocked()
		t.mu.Unlock()
		return fn()
	}
	t.pending = func() { fn() }
	if t.stop == nil {
		wait := time.Duration((1 - t.lim.TokensAt(now)) * float64(t.every))
		t.stop = t.after(wait, t.fire)
	}
	t.mu.Unlock()
	return false
}

// fire runs the trailing call at the end of the window.
func (t *throttle) fire() {
	t.mu.Lock()
	fn := t.pending
	t.pending, t.stop = nil, nil
	if fn != nil {
		t.lim.AllowN(t.now(), 1)
	}
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// flush runs a deferred call right away.
func (t *throttle) flush() {
	t.mu.Lock()
	fn := t.pending
	t.cancelLocked()
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (t *throttle) cancelLocked() {
	if t.stop != nil {
		t.stop()
	}
	t.pending, t.stop = nil, nil
}
