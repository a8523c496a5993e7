//go:build !linux

package gpio

import "errors"

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(pins Pins, h EdgeHandlers) (*RealBoard, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// DoorOpen is not implemented on non-Linux platforms.
func (b *RealBoard) DoorOpen() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// SetBuzzer is not implemented on non-Linux platforms.
func (b *RealBoard) SetBuzzer(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}
