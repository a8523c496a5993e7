package scale

import "sync"

// FakeCell is a test double modelling a platform with a settable load.
// Raw readings are ZeroRaw + Load*Factor, so a tare followed by SetOffset
// makes ReadGrams return Load again.
type FakeCell struct {
	mu sync.Mutex

	// Load is the weight on the platform, in grams.
	Load float64
	// ZeroRaw is the raw reading of the empty platform.
	ZeroRaw int64
	// Factor is the raw-counts-per-gram calibration. Zero means 1.
	Factor float64

	// Requests records the samples argument of every read in order.
	Requests []int

	// ReadError, if set, is returned by every read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool

	offset int64
}

// NewFakeCell creates a FakeCell with load grams on it and a unit factor.
func NewFakeCell(load float64) *FakeCell {
	return &FakeCell{Load: load, Factor: 1}
}

// SetLoad changes the weight on the platform.
func (f *FakeCell) SetLoad(grams float64) {
	f.mu.Lock()
	f.Load = grams
	f.mu.Unlock()
}

func (f *FakeCell) factor() float64 {
	if f.Factor == 0 {
		return 1
	}
	return f.Factor
}

func (f *FakeCell) raw() int64 {
	return f.ZeroRaw + int64(f.Load*f.factor())
}

// ReadRaw returns the modelled raw reading.
func (f *FakeCell) ReadRaw(samples int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if samples <= 0 {
		return 0, errNoSamples
	}
	f.Requests = append(f.Requests, samples)
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.raw(), nil
}

// ReadGrams returns the modelled reading relative to the offset.
func (f *FakeCell) ReadGrams(samples int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if samples <= 0 {
		return 0, errNoSamples
	}
	f.Requests = append(f.Requests, samples)
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return ToGrams(f.raw(), f.offset, f.factor())
}

// SetOffset sets the raw zero reference.
func (f *FakeCell) SetOffset(offset int64) {
	f.mu.Lock()
	f.offset = offset
	f.mu.Unlock()
}

// Offset returns the raw zero reference.
func (f *FakeCell) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Close marks the cell as closed.
func (f *FakeCell) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Reset clears recorded requests.
func (f *FakeCell) Reset() {
	f.mu.Lock()
	f.Requests = nil
	f.mu.Unlock()
}
