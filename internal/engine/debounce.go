package engine

import (
	"sync"
	"time"
)

// refreshDebounce is the coalescing window for change-feed refresh
// triggers. Bursts of events within one window produce a single refresh.
const refreshDebounce = 900 * time.Millisecond

// refreshDebouncer coalesces refresh triggers leading-edge: the first
// trigger in a window fires immediately, later triggers inside the same
// window are dropped. There is no trailing timer, so nothing can fire
// after teardown.
type refreshDebouncer struct {
	mu      sync.Mutex
	last    time.Time
	window  time.Duration
	nowFunc func() time.Time // injectable for deterministic tests
}

func newRefreshDebouncer(window time.Duration) *refreshDebouncer {
	return &refreshDebouncer{
		window:  window,
		nowFunc: time.Now,
	}
}

// allow reports whether a trigger arriving now should fire a refresh, and
// if so opens a new suppression window.
func (d *refreshDebouncer) allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()
	if !d.last.IsZero() && now.Sub(d.last) <= d.window {
		return false
	}

	d.last = now

	return true
}
