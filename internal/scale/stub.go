//go:build !linux

package scale

import "errors"

// OpenHX711 returns an error on non-Linux platforms.
func OpenHX711(chip string, pinDT, pinSCK int, factor float64) (*HX711, error) {
	return nil, errors.New("scale: not supported on this platform (requires Linux)")
}
