// Package scale reads the load cell through an HX711 amplifier.
// The real implementation bit-bangs the HX711 clock and data lines over the
// Linux GPIO character device. The fake implementation allows testing
// without hardware.
package scale

import (
	"errors"
	"fmt"
)

// Cell is an averaged, zero-referenced load cell.
type Cell interface {
	// ReadGrams averages samples conversions and converts them to grams
	// relative to the current offset.
	ReadGrams(samples int) (float64, error)

	// ReadRaw averages samples conversions without offset or scaling.
	// Tare uses it to compute a new zero reference.
	ReadRaw(samples int) (int64, error)

	// SetOffset sets the raw zero reference.
	SetOffset(offset int64)

	// Offset returns the raw zero reference.
	Offset() int64

	// Close releases the hardware.
	Close() error
}

// Default pin assignments (BCM numbering) and calibration.
const (
	DefaultPinDT  = 5
	DefaultPinSCK = 6

	// DefaultCalibrationFactor converts raw counts to grams for the stock cell.
	DefaultCalibrationFactor = 420.0
)

var errNoSamples = errors.New("scale: samples must be positive")

// ToGrams converts an averaged raw reading to grams.
func ToGrams(raw, offset int64, factor float64) (float64, error) {
	if factor == 0 {
		return 0, errors.New("scale: calibration factor is zero")
	}
	return float64(raw-offset) / factor, nil
}

// CalibrationFactor computes the raw-counts-per-gram factor from a reading
// (net of the tare offset) taken with knownGrams on the platform.
func CalibrationFactor(netRaw int64, knownGrams float64) (float64, error) {
	if knownGrams <= 0 {
		return 0, fmt.Errorf("scale: known weight must be positive, got %v", knownGrams)
	}
	f := float64(netRaw) / knownGrams
	if f == 0 {
		return 0, errors.New("scale: no signal from load cell")
	}
	return f, nil
}

// signExtend24 interprets the low 24 bits of v as a two's complement value.
func signExtend24(v uint32) int32 {
	v &= 0xFFFFFF
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v)
}
