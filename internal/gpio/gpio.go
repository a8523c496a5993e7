// Package gpio provides the door sensor, tare button and buzzer with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Board is the controller's view of the digital I/O.
type Board interface {
	// DoorOpen reads the settled level of the door sensor.
	DoorOpen() (bool, error)

	// SetBuzzer drives the buzzer output.
	SetBuzzer(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// EdgeHandlers are invoked from the line event goroutine. They must only
// record that an edge happened; no sensor is read from them.
type EdgeHandlers struct {
	Door func() // both edges of the door sensor
	Tare func() // falling edge of the tare button
}

// Pins holds the line offsets (BCM numbering) and wiring polarity.
type Pins struct {
	Chip   string
	Door   int
	Tare   int
	Buzzer int
	// DoorOpenHigh is true when a high level on the door line means open.
	DoorOpenHigh bool
}

// Default pin assignments (BCM numbering).
const (
	DefaultChip      = "gpiochip0"
	DefaultPinDoor   = 17
	DefaultPinTare   = 27
	DefaultPinBuzzer = 22
)

// DefaultPins returns the stock wiring: reed switch to ground with pull-up,
// so the line reads high while the magnet is away and the door is open.
func DefaultPins() Pins {
	return Pins{
		Chip:         DefaultChip,
		Door:         DefaultPinDoor,
		Tare:         DefaultPinTare,
		Buzzer:       DefaultPinBuzzer,
		DoorOpenHigh: true,
	}
}

// doorOpen maps a raw line value to the logical door state.
func doorOpen(raw int, openHigh bool) bool {
	if openHigh {
		return raw != 0
	}
	return raw == 0
}
