package probe

import "sync"

// FakeProbe is a test double returning a settable temperature.
type FakeProbe struct {
	mu sync.Mutex

	// Celsius is returned while Disconnected is false.
	Celsius float64
	// Disconnected makes ReadCelsius return ErrDisconnected.
	Disconnected bool
	// Reads counts ReadCelsius calls.
	Reads int
}

// NewFakeProbe creates a connected probe reading celsius.
func NewFakeProbe(celsius float64) *FakeProbe {
	return &FakeProbe{Celsius: celsius}
}

// Set changes the reading and reconnects the probe.
func (f *FakeProbe) Set(celsius float64) {
	f.mu.Lock()
	f.Celsius = celsius
	f.Disconnected = false
	f.mu.Unlock()
}

// Unplug makes subsequent reads fail.
func (f *FakeProbe) Unplug() {
	f.mu.Lock()
	f.Disconnected = true
	f.mu.Unlock()
}

// ReadCelsius returns the scripted reading.
func (f *FakeProbe) ReadCelsius() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.Disconnected {
		return 0, ErrDisconnected
	}
	return f.Celsius, nil
}
