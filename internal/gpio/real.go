//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealBoard drives the door, tare and buzzer lines on actual hardware.
type RealBoard struct {
	chip     *gpiocdev.Chip
	door     *gpiocdev.Line
	tare     *gpiocdev.Line
	buzzer   *gpiocdev.Line
	openHigh bool
}

// NewRealBoard requests the lines and attaches the edge handlers.
// Nil handlers leave the corresponding line without edge detection.
func NewRealBoard(pins Pins, h EdgeHandlers) (*RealBoard, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", pins.Chip, err)
	}
	b := &RealBoard{chip: chip, openHigh: pins.DoorOpenHigh}

	doorOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	if h.Door != nil {
		doorOpts = append(doorOpts, gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { h.Door() }))
	}
	b.door, err = chip.RequestLine(pins.Door, doorOpts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request door pin %d: %w", pins.Door, err)
	}

	tareOpts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp}
	if h.Tare != nil {
		tareOpts = append(tareOpts, gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { h.Tare() }))
	}
	b.tare, err = chip.RequestLine(pins.Tare, tareOpts...)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request tare pin %d: %w", pins.Tare, err)
	}

	b.buzzer, err = chip.RequestLine(pins.Buzzer, gpiocdev.AsOutput(0))
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", pins.Buzzer, err)
	}

	return b, nil
}

// DoorOpen reads the door line.
func (b *RealBoard) DoorOpen() (bool, error) {
	raw, err := b.door.Value()
	if err != nil {
		return false, fmt.Errorf("read door pin: %w", err)
	}
	return doorOpen(raw, b.openHigh), nil
}

// SetBuzzer drives the buzzer line.
func (b *RealBoard) SetBuzzer(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := b.buzzer.SetValue(v); err != nil {
		return fmt.Errorf("set buzzer: %w", err)
	}
	return nil
}

// Close silences the buzzer and releases GPIO resources.
// The buzzer line is returned to an input with pull-down so it stays quiet
// while nothing owns it.
func (b *RealBoard) Close() error {
	var errs []error

	if b.buzzer != nil {
		if err := b.buzzer.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("silence buzzer: %w", err))
		}
		if err := b.buzzer.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure buzzer pin: %w", err))
		}
		if err := b.buzzer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buzzer pin: %w", err))
		}
	}
	if b.tare != nil {
		if err := b.tare.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tare pin: %w", err))
		}
	}
	if b.door != nil {
		if err := b.door.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close door pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
