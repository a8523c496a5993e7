package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeBoardDoorLevel(t *testing.T) {
	t.Parallel()

	f := NewFakeBoard(EdgeHandlers{})

	open, err := f.DoorOpen()
	require.NoError(t, err)
	require.False(t, open, "closed initially")

	f.SetDoor(true)
	open, err = f.DoorOpen()
	require.NoError(t, err)
	require.True(t, open)
}

func TestFakeBoardFiresHandlers(t *testing.T) {
	t.Parallel()

	doorEdges, tareEdges := 0, 0
	f := NewFakeBoard(EdgeHandlers{
		Door: func() { doorEdges++ },
		Tare: func() { tareEdges++ },
	})

	f.SetDoor(true)
	f.FireDoor()
	f.PressTare()

	require.Equal(t, 2, doorEdges)
	require.Equal(t, 1, tareEdges)
}

func TestFakeBoardNilHandlers(t *testing.T) {
	t.Parallel()

	f := NewFakeBoard(EdgeHandlers{})
	require.NotPanics(t, func() {
		f.FireDoor()
		f.PressTare()
	})
}

func TestFakeBoardBuzzer(t *testing.T) {
	t.Parallel()

	f := NewFakeBoard(EdgeHandlers{})

	require.NoError(t, f.SetBuzzer(true))
	require.NoError(t, f.SetBuzzer(false))
	require.NoError(t, f.SetBuzzer(true))

	require.True(t, f.BuzzerOn())
	require.Equal(t, []bool{true, false, true}, f.BuzzerWrites)
}

func TestFakeBoardErrors(t *testing.T) {
	t.Parallel()

	f := NewFakeBoard(EdgeHandlers{})
	f.ReadError = errors.New("simulated read error")
	f.WriteError = errors.New("simulated write error")

	_, err := f.DoorOpen()
	require.EqualError(t, err, "simulated read error")
	require.Error(t, f.SetBuzzer(true))
	require.False(t, f.Buzzer, "failed write must not change the level")
}

func TestFakeBoardClose(t *testing.T) {
	t.Parallel()

	f := NewFakeBoard(EdgeHandlers{})
	require.False(t, f.Closed)
	require.NoError(t, f.Close())
	require.True(t, f.Closed)
}

func TestDoorOpenPolarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      int
		openHigh bool
		want     bool
	}{
		{1, true, true},
		{0, true, false},
		{1, false, false},
		{0, false, true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, doorOpen(tt.raw, tt.openHigh), "doorOpen(%d, %v)", tt.raw, tt.openHigh)
	}
}

func TestDefaultPins(t *testing.T) {
	t.Parallel()

	p := DefaultPins()
	require.Equal(t, "gpiochip0", p.Chip)
	require.NotEqual(t, p.Door, p.Tare)
	require.NotEqual(t, p.Door, p.Buzzer)
	require.NotEqual(t, p.Tare, p.Buzzer)
	require.True(t, p.DoorOpenHigh, "stock wiring reads high when open")
}
