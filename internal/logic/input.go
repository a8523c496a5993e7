package logic

import (
	"sync/atomic"
	"time"
)

// EdgeFlag is a one-shot "an edge happened" marker. It has a single producer
// (the edge handler) and a single consumer (the loop). Edge counts are not
// kept: two edges before the loop looks collapse into one.
type EdgeFlag struct {
	v atomic.Bool
}

// Set marks that an edge occurred.
func (f *EdgeFlag) Set() {
	f.v.Store(true)
}

// Take reads and clears the flag in one atomic step, so an edge firing
// between the read and the clear is never lost.
func (f *EdgeFlag) Take() bool {
	return f.v.Swap(false)
}

// Pending reports whether the flag is set without clearing it.
func (f *EdgeFlag) Pending() bool {
	return f.v.Load()
}

// EdgeGate is a software debounce for edge handlers: an edge is accepted only
// if Window has elapsed since the previously accepted edge.
// Not safe for concurrent use; it belongs to one edge handler.
type EdgeGate struct {
	Window time.Duration

	last Millis
	seen bool
}

// Accept reports whether an edge at now passes the gate, and records it if so.
func (g *EdgeGate) Accept(now Millis) bool {
	if g.seen && !now.Reached(g.last, g.Window) {
		return false
	}
	g.last = now
	g.seen = true
	return true
}

// InputCapture turns asynchronous edge callbacks into loop-visible flags.
// The door edge is debounced at capture time; the tare edge is not.
// No sensor is read from the callbacks.
type InputCapture struct {
	door     EdgeFlag
	tare     EdgeFlag
	doorGate EdgeGate
}

// NewInputCapture creates a capture whose door edges are gated by debounce.
func NewInputCapture(debounce time.Duration) *InputCapture {
	return &InputCapture{doorGate: EdgeGate{Window: debounce}}
}

// DoorEdge is called from the door edge handler with the current counter.
func (c *InputCapture) DoorEdge(now Millis) {
	if c.doorGate.Accept(now) {
		c.door.Set()
	}
}

// TareEdge is called from the tare button handler, or for a host tare command.
func (c *InputCapture) TareEdge() {
	c.tare.Set()
}

// TakeDoor consumes a pending door edge.
func (c *InputCapture) TakeDoor() bool {
	return c.door.Take()
}

// TakeTare consumes a pending tare request.
func (c *InputCapture) TakeTare() bool {
	return c.tare.Take()
}
