package gpio

import "sync"

// FakeBoard is a test double with a settable door level and a recorded buzzer.
type FakeBoard struct {
	mu sync.Mutex

	// Open is the level returned by DoorOpen.
	Open bool

	// Buzzer is the last value written by SetBuzzer.
	Buzzer bool

	// BuzzerWrites records every SetBuzzer call in order.
	BuzzerWrites []bool

	// Closed tracks if Close was called.
	Closed bool

	// ReadError, if set, will be returned by DoorOpen.
	ReadError error

	// WriteError, if set, will be returned by SetBuzzer.
	WriteError error

	handlers EdgeHandlers
}

// NewFakeBoard creates a FakeBoard that forwards fired edges to h.
func NewFakeBoard(h EdgeHandlers) *FakeBoard {
	return &FakeBoard{handlers: h}
}

// DoorOpen returns the scripted door level.
func (f *FakeBoard) DoorOpen() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.Open, nil
}

// SetBuzzer records the buzzer level.
func (f *FakeBoard) SetBuzzer(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Buzzer = on
	f.BuzzerWrites = append(f.BuzzerWrites, on)
	return nil
}

// Close marks the board as closed.
func (f *FakeBoard) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// SetDoor changes the door level and fires a door edge, as the reed switch would.
func (f *FakeBoard) SetDoor(open bool) {
	f.mu.Lock()
	f.Open = open
	f.mu.Unlock()
	f.FireDoor()
}

// FireDoor fires a door edge without changing the level (contact bounce).
func (f *FakeBoard) FireDoor() {
	if f.handlers.Door != nil {
		f.handlers.Door()
	}
}

// PressTare fires a tare button edge.
func (f *FakeBoard) PressTare() {
	if f.handlers.Tare != nil {
		f.handlers.Tare()
	}
}

// BuzzerOn reports the current buzzer level.
func (f *FakeBoard) BuzzerOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Buzzer
}
