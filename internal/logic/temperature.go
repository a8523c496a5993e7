package logic

import "time"

// StatusCode classifies the latest temperature reading. The numeric values
// are part of the host protocol.
type StatusCode int

const (
	StatusOK         StatusCode = 1
	StatusOutOfRange StatusCode = 2
	StatusFault      StatusCode = 3
	StatusUnknown    StatusCode = 4
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusOutOfRange:
		return "OUT_OF_RANGE"
	case StatusFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// DisconnectedCelsius is the out-of-band value reported for a missing probe.
const DisconnectedCelsius = -127.0

// TemperatureConfig holds the sampling cadence and the acceptable band.
type TemperatureConfig struct {
	Interval time.Duration
	MinOK    float64 // inclusive
	MaxOK    float64 // inclusive
}

// DefaultTemperatureConfig returns the stock cadence and band (30 s, 0.5–4.0 °C).
func DefaultTemperatureConfig() TemperatureConfig {
	return TemperatureConfig{
		Interval: 30 * time.Second,
		MinOK:    0.5,
		MaxOK:    4.0,
	}
}

// TemperatureStatus is the latest reading and its classification.
type TemperatureStatus struct {
	LastValue float64
	Code      StatusCode
}

// Classify maps a reading to a status. It depends on nothing but its inputs.
func Classify(cfg TemperatureConfig, reading float64, disconnected bool) TemperatureStatus {
	if disconnected {
		return TemperatureStatus{LastValue: DisconnectedCelsius, Code: StatusFault}
	}
	if reading < cfg.MinOK || reading > cfg.MaxOK {
		return TemperatureStatus{LastValue: reading, Code: StatusOutOfRange}
	}
	return TemperatureStatus{LastValue: reading, Code: StatusOK}
}

// TemperatureSampler fires on a fixed cadence. The first tick is due
// immediately so a status report goes out on the first loop iteration.
type TemperatureSampler struct {
	cfg    TemperatureConfig
	last   Millis
	primed bool
	status TemperatureStatus
}

// NewTemperatureSampler creates a sampler whose status is UNKNOWN.
func NewTemperatureSampler(cfg TemperatureConfig) *TemperatureSampler {
	return &TemperatureSampler{
		cfg:    cfg,
		status: TemperatureStatus{LastValue: DisconnectedCelsius, Code: StatusUnknown},
	}
}

// Due reports whether a sample should be taken at now.
func (s *TemperatureSampler) Due(now Millis) bool {
	return !s.primed || now.Reached(s.last, s.cfg.Interval)
}

// Record stores a sample taken at now and returns its classification.
func (s *TemperatureSampler) Record(now Millis, reading float64, disconnected bool) TemperatureStatus {
	s.last = now
	s.primed = true
	s.status = Classify(s.cfg, reading, disconnected)
	return s.status
}

// Status returns the latest classification.
func (s *TemperatureSampler) Status() TemperatureStatus {
	return s.status
}
