package logic

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEdgeFlagTakeClears(t *testing.T) {
	t.Parallel()

	var f EdgeFlag
	require.False(t, f.Take(), "new flag should be clear")

	f.Set()
	f.Set()
	require.True(t, f.Pending())
	require.True(t, f.Take())
	require.False(t, f.Take(), "edges collapse: second take must be clear")
}

func TestEdgeFlagConcurrentProducer(t *testing.T) {
	t.Parallel()

	var f EdgeFlag
	var wg sync.WaitGroup
	const n = 1000

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			f.Set()
		}
	}()

	seen := 0
	for i := 0; i < n; i++ {
		if f.Take() {
			seen++
		}
	}
	wg.Wait()
	if f.Take() {
		seen++
	}
	require.NotZero(t, seen, "consumer never observed an edge")
}

func TestEdgeGate(t *testing.T) {
	t.Parallel()

	g := EdgeGate{Window: 200 * time.Millisecond}

	require.True(t, g.Accept(1000), "first edge is accepted")
	require.False(t, g.Accept(1100), "bounce at +100 ms")
	require.False(t, g.Accept(1199), "bounce at +199 ms")
	require.True(t, g.Accept(1200), "edge at +200 ms")
	require.False(t, g.Accept(1300), "window restarts from the last accepted edge")
}

func TestInputCapture(t *testing.T) {
	t.Parallel()

	c := NewInputCapture(200 * time.Millisecond)

	c.DoorEdge(0)
	c.DoorEdge(50) // bounce
	require.True(t, c.TakeDoor())
	require.False(t, c.TakeDoor(), "bounce must not raise a second door edge")

	c.TareEdge()
	c.TareEdge()
	require.True(t, c.TakeTare())
	require.False(t, c.TakeTare(), "tare flag cleared after take")
}
