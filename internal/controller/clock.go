package controller

import (
	"sync"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// Clock is the free-running millisecond counter the state machines run on.
// It is read from edge handlers too, so implementations must be safe for
// concurrent use.
type Clock interface {
	Millis() logic.Millis
}

// SystemClock counts milliseconds since it was created. The counter wraps
// like a microcontroller's after about 49 days.
type SystemClock struct {
	start time.Time
}

// NewSystemClock starts a counter at zero.
func NewSystemClock() SystemClock {
	return SystemClock{start: time.Now()}
}

// Millis returns the elapsed milliseconds, truncated to 32 bits.
func (c SystemClock) Millis() logic.Millis {
	return logic.Millis(uint32(time.Since(c.start).Milliseconds()))
}

// WallClock supplies event timestamps. Until the host sets it, it follows the
// local system time; afterwards it runs from the host's time on the
// monotonic clock.
type WallClock struct {
	mu     sync.Mutex
	now    func() time.Time
	synced bool
	base   int64 // host time in microseconds at setAt
	setAt  time.Time
}

// NewWallClock creates an unsynchronized clock. A nil now means time.Now.
func NewWallClock(now func() time.Time) *WallClock {
	if now == nil {
		now = time.Now
	}
	return &WallClock{now: now}
}

// Set anchors the clock to micros, microseconds since the Unix epoch.
func (w *WallClock) Set(micros int64) {
	w.mu.Lock()
	w.base = micros
	w.setAt = w.now()
	w.synced = true
	w.mu.Unlock()
}

// UnixMicro returns the current time in microseconds since the Unix epoch.
func (w *WallClock) UnixMicro() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if !w.synced {
		return now.UnixMicro()
	}
	return w.base + now.Sub(w.setAt).Microseconds()
}

// Synced reports whether the host has set the clock.
func (w *WallClock) Synced() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.synced
}
