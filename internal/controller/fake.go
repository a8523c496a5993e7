package controller

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// FakeClock is a manually advanced Clock.
type FakeClock struct {
	ms atomic.Uint32
}

// NewFakeClock creates a clock reading start.
func NewFakeClock(start logic.Millis) *FakeClock {
	c := &FakeClock{}
	c.ms.Store(uint32(start))
	return c
}

// Millis returns the current reading.
func (c *FakeClock) Millis() logic.Millis {
	return logic.Millis(c.ms.Load())
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.ms.Add(logic.DurationMillis(d))
}

// Set jumps the clock to m.
func (c *FakeClock) Set(m logic.Millis) {
	c.ms.Store(uint32(m))
}
