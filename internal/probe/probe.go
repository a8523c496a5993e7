// Package probe reads the DS18B20 temperature probe through the kernel
// 1-Wire sysfs interface (w1-gpio + w1-therm).
package probe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Reader reads the probe temperature.
type Reader interface {
	// ReadCelsius returns the temperature, or ErrDisconnected when the
	// probe is absent or its reading failed the CRC check.
	ReadCelsius() (float64, error)
}

// ErrDisconnected means no valid reading could be obtained from the probe.
var ErrDisconnected = errors.New("probe disconnected")

// DefaultDir is where the kernel exposes 1-Wire slaves.
const DefaultDir = "/sys/bus/w1/devices"

// W1Probe reads a DS18B20 slave file.
type W1Probe struct {
	dir    string
	device string
}

// NewW1Probe creates a probe for device under dir. An empty device selects
// the first DS18B20 (family 28) found at read time.
func NewW1Probe(dir, device string) *W1Probe {
	if dir == "" {
		dir = DefaultDir
	}
	return &W1Probe{dir: dir, device: device}
}

func (p *W1Probe) slavePath() (string, error) {
	if p.device != "" {
		return filepath.Join(p.dir, p.device, "w1_slave"), nil
	}
	matches, err := filepath.Glob(filepath.Join(p.dir, "28-*"))
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", p.dir, err)
	}
	if len(matches) == 0 {
		return "", ErrDisconnected
	}
	return filepath.Join(matches[0], "w1_slave"), nil
}

// ReadCelsius reads and parses the slave file. A missing device is reported
// as ErrDisconnected.
func (p *W1Probe) ReadCelsius() (float64, error) {
	path, err := p.slavePath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrDisconnected
		}
		// A slave that drops off the bus mid-read fails with EIO.
		return 0, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return ParseW1Slave(string(data))
}

// ParseW1Slave parses the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func ParseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: short read", ErrDisconnected)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("%w: crc check failed", ErrDisconnected)
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("%w: no temperature field", ErrDisconnected)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: bad temperature %q", ErrDisconnected, lines[1][i+2:])
	}
	return float64(milli) / 1000, nil
}
