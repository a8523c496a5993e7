package scale

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// simChip models the HX711 serial interface: DT is low while a conversion is
// ready, each rising SCK edge shifts out the next bit MSB first, and the
// 25th pulse ends the read.
type simChip struct {
	values []int32
	cur    int
	pulses int
	sck    int
	busy   int // DT reads that report not-ready before each conversion
	waits  int
}

type simDT struct{ c *simChip }

func (d simDT) Value() (int, error) {
	c := d.c
	if c.pulses == 0 {
		if c.waits < c.busy {
			c.waits++
			return 1, nil
		}
		return 0, nil
	}
	if c.pulses <= 24 {
		v := uint32(c.values[c.cur]) & 0xFFFFFF
		return int(v>>(24-c.pulses)) & 1, nil
	}
	return 1, nil
}

func (d simDT) SetValue(int) error { return errors.New("dt is an input") }

type simSCK struct{ c *simChip }

func (s simSCK) Value() (int, error) { return s.c.sck, nil }

func (s simSCK) SetValue(v int) error {
	c := s.c
	if v == 1 && c.sck == 0 {
		c.pulses++
	}
	if v == 0 && c.pulses == 24+gainPulses {
		c.pulses = 0
		c.waits = 0
		if c.cur < len(c.values)-1 {
			c.cur++
		}
	}
	c.sck = v
	return nil
}

func newSim(values ...int32) (*simChip, *HX711) {
	c := &simChip{values: values}
	h := NewHX711(simDT{c}, simSCK{c}, 1, nil)
	h.Sleep = func(time.Duration) {}
	return c, h
}

func TestSignExtend24(t *testing.T) {
	t.Parallel()

	require.Equal(t, int32(0), signExtend24(0))
	require.Equal(t, int32(8388607), signExtend24(0x7FFFFF))
	require.Equal(t, int32(-1), signExtend24(0xFFFFFF))
	require.Equal(t, int32(-8388608), signExtend24(0x800000))
	require.Equal(t, int32(1), signExtend24(0xFF000001))
}

func TestHX711ReadsConversions(t *testing.T) {
	t.Parallel()

	_, h := newSim(123456, -2000, 0x7FFFFF)

	v, err := h.readOnce()
	require.NoError(t, err)
	require.Equal(t, int32(123456), v)

	v, err = h.readOnce()
	require.NoError(t, err)
	require.Equal(t, int32(-2000), v)

	v, err = h.readOnce()
	require.NoError(t, err)
	require.Equal(t, int32(0x7FFFFF), v)
}

func TestHX711ReadRawAverages(t *testing.T) {
	t.Parallel()

	_, h := newSim(100, 200, 300, 400)

	raw, err := h.ReadRaw(4)
	require.NoError(t, err)
	require.Equal(t, int64(250), raw)
}

func TestHX711ReadGramsUsesOffsetAndFactor(t *testing.T) {
	t.Parallel()

	_, h := newSim(10500)
	h.SetFactor(2)
	h.SetOffset(500)

	g, err := h.ReadGrams(3)
	require.NoError(t, err)
	require.InDelta(t, 5000.0, g, 1e-9)
	require.Equal(t, int64(500), h.Offset())
}

func TestHX711WaitsForReady(t *testing.T) {
	t.Parallel()

	c, h := newSim(42)
	c.busy = 5
	slept := 0
	h.Sleep = func(time.Duration) { slept++ }

	v, err := h.readOnce()
	require.NoError(t, err)
	require.Equal(t, int32(42), v)
	require.Equal(t, 5, slept)
}

func TestHX711NotReadyTimeout(t *testing.T) {
	t.Parallel()

	c, h := newSim(42)
	c.busy = 1 << 30
	h.ReadyTimeout = 10 * time.Millisecond

	_, err := h.ReadRaw(1)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestHX711RejectsNoSamples(t *testing.T) {
	t.Parallel()

	_, h := newSim(1)
	_, err := h.ReadRaw(0)
	require.Error(t, err)
}

func TestHX711CloseCallsCloser(t *testing.T) {
	t.Parallel()

	closed := false
	h := NewHX711(nil, nil, 1, func() error { closed = true; return nil })
	require.NoError(t, h.Close())
	require.True(t, closed)

	require.NoError(t, NewHX711(nil, nil, 1, nil).Close())
}

func TestToGrams(t *testing.T) {
	t.Parallel()

	g, err := ToGrams(4200, 0, 420)
	require.NoError(t, err)
	require.InDelta(t, 10.0, g, 1e-9)

	_, err = ToGrams(1, 0, 0)
	require.Error(t, err)
}

func TestCalibrationFactor(t *testing.T) {
	t.Parallel()

	f, err := CalibrationFactor(210000, 500)
	require.NoError(t, err)
	require.InDelta(t, 420.0, f, 1e-9)

	_, err = CalibrationFactor(210000, 0)
	require.Error(t, err)

	_, err = CalibrationFactor(0, 500)
	require.Error(t, err)
}

func TestFakeCellTare(t *testing.T) {
	t.Parallel()

	f := NewFakeCell(5000)
	f.ZeroRaw = 8000
	f.Factor = 2

	g, err := f.ReadGrams(1)
	require.NoError(t, err)
	require.InDelta(t, 9000.0, g, 1e-9) // untared: (8000+10000)/2

	raw, err := f.ReadRaw(20)
	require.NoError(t, err)
	f.SetOffset(raw)

	g, err = f.ReadGrams(10)
	require.NoError(t, err)
	require.InDelta(t, 0.0, g, 1e-9)

	f.SetLoad(4500)
	g, err = f.ReadGrams(5)
	require.NoError(t, err)
	require.InDelta(t, -500.0, g, 1e-9)

	require.Equal(t, []int{1, 20, 10, 5}, f.Requests)
}

func TestFakeCellError(t *testing.T) {
	t.Parallel()

	f := NewFakeCell(0)
	f.ReadError = errors.New("cable")

	_, err := f.ReadGrams(1)
	require.Error(t, err)
	_, err = f.ReadRaw(1)
	require.Error(t, err)
	require.NoError(t, f.Close())
	require.True(t, f.Closed)
}
