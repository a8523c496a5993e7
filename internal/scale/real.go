//go:build linux

package scale

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// OpenHX711 requests the DT and SCK lines on chip and returns a driver.
// SCK starts low; holding it high for more than 60 µs powers the chip down.
func OpenHX711(chip string, pinDT, pinSCK int, factor float64) (*HX711, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	dt, err := c.RequestLine(pinDT, gpiocdev.AsInput)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request dt pin %d: %w", pinDT, err)
	}

	sck, err := c.RequestLine(pinSCK, gpiocdev.AsOutput(0))
	if err != nil {
		dt.Close()
		c.Close()
		return nil, fmt.Errorf("request sck pin %d: %w", pinSCK, err)
	}

	closer := func() error {
		var errs []error
		if err := sck.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sck pin: %w", err))
		}
		if err := dt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dt pin: %w", err))
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		if len(errs) > 0 {
			return fmt.Errorf("close errors: %v", errs)
		}
		return nil
	}

	return NewHX711(dt, sck, factor, closer), nil
}
