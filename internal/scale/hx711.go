package scale

import (
	"errors"
	"fmt"
	"time"
)

// Line is a single GPIO line. *gpiocdev.Line satisfies it.
type Line interface {
	Value() (int, error)
	SetValue(value int) error
}

// ErrNotReady is returned when the HX711 does not finish a conversion in time.
var ErrNotReady = errors.New("hx711: not ready")

// Channel A with gain 128 is selected by one extra clock pulse after the data bits.
const gainPulses = 1

// HX711 reads conversions from the amplifier's two-wire interface.
type HX711 struct {
	dt     Line
	sck    Line
	closer func() error

	factor float64
	offset int64

	// ReadyTimeout bounds the wait for DT to go low. Conversions arrive at
	// 10 Hz or 80 Hz depending on the RATE pin.
	ReadyTimeout time.Duration
	// Sleep is used while polling DT.
	Sleep func(time.Duration)
}

// NewHX711 creates a driver on already-requested lines. closer, if not nil,
// is called by Close to release them.
func NewHX711(dt, sck Line, factor float64, closer func() error) *HX711 {
	return &HX711{
		dt:           dt,
		sck:          sck,
		closer:       closer,
		factor:       factor,
		ReadyTimeout: 500 * time.Millisecond,
		Sleep:        time.Sleep,
	}
}

func (h *HX711) waitReady() error {
	const poll = time.Millisecond
	var waited time.Duration
	for {
		v, err := h.dt.Value()
		if err != nil {
			return fmt.Errorf("read dt: %w", err)
		}
		if v == 0 {
			return nil
		}
		if waited >= h.ReadyTimeout {
			return ErrNotReady
		}
		h.Sleep(poll)
		waited += poll
	}
}

func (h *HX711) pulse() (int, error) {
	if err := h.sck.SetValue(1); err != nil {
		return 0, fmt.Errorf("set sck: %w", err)
	}
	bit, err := h.dt.Value()
	if err != nil {
		h.sck.SetValue(0)
		return 0, fmt.Errorf("read dt: %w", err)
	}
	if err := h.sck.SetValue(0); err != nil {
		return 0, fmt.Errorf("clear sck: %w", err)
	}
	return bit, nil
}

// readOnce clocks out one 24-bit conversion, MSB first.
func (h *HX711) readOnce() (int32, error) {
	if err := h.waitReady(); err != nil {
		return 0, err
	}

	var v uint32
	for i := 0; i < 24; i++ {
		bit, err := h.pulse()
		if err != nil {
			return 0, err
		}
		v = v<<1 | uint32(bit&1)
	}
	for i := 0; i < gainPulses; i++ {
		if _, err := h.pulse(); err != nil {
			return 0, err
		}
	}
	return signExtend24(v), nil
}

// ReadRaw averages samples conversions.
func (h *HX711) ReadRaw(samples int) (int64, error) {
	if samples <= 0 {
		return 0, errNoSamples
	}
	var sum int64
	for i := 0; i < samples; i++ {
		v, err := h.readOnce()
		if err != nil {
			return 0, err
		}
		sum += int64(v)
	}
	return sum / int64(samples), nil
}

// ReadGrams averages samples conversions and scales them to grams.
func (h *HX711) ReadGrams(samples int) (float64, error) {
	raw, err := h.ReadRaw(samples)
	if err != nil {
		return 0, err
	}
	return ToGrams(raw, h.offset, h.factor)
}

// SetOffset sets the raw zero reference.
func (h *HX711) SetOffset(offset int64) {
	h.offset = offset
}

// Offset returns the raw zero reference.
func (h *HX711) Offset() int64 {
	return h.offset
}

// SetFactor replaces the calibration factor.
func (h *HX711) SetFactor(factor float64) {
	h.factor = factor
}

// Close releases the lines.
func (h *HX711) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer()
}
