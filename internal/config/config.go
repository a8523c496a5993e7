// Package config loads the daemon configuration from YAML.
// Every value has a default equal to the stock firmware constant, so an
// absent file is a valid configuration. Zero durations, pins and sample
// counts select the default; the gram thresholds, the temperature band and
// the door level are pointers so an explicit 0 is kept.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/fridge-sensor/internal/controller"
	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/probe"
	"github.com/sweeney/fridge-sensor/internal/scale"
	"github.com/sweeney/fridge-sensor/internal/serial"
	"github.com/sweeney/fridge-sensor/internal/store"
)

// DefaultConfigFilename is read when --config is not given.
const DefaultConfigFilename = "fridge-sensor.yaml"

// Config is the daemon configuration.
type Config struct {
	DeviceID string        `yaml:"device_id"`
	LogLevel string        `yaml:"log_level"`
	Poll     time.Duration `yaml:"poll"`

	Serial      SerialConfig      `yaml:"serial"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Scale       ScaleConfig       `yaml:"scale"`
	Probe       ProbeConfig       `yaml:"probe"`
	Store       StoreConfig       `yaml:"store"`
	Weight      WeightConfig      `yaml:"weight"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Alarm       AlarmConfig       `yaml:"alarm"`
	Door        DoorConfig        `yaml:"door"`
	Sync        SyncConfig        `yaml:"sync"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// SerialConfig selects the host link.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// GPIOConfig holds line offsets for the digital I/O.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	DoorPin   int    `yaml:"door_pin"`
	TarePin   int    `yaml:"tare_pin"`
	BuzzerPin int    `yaml:"buzzer_pin"`
	// DoorOpenLevel is the raw level (0 or 1) read while the door is open.
	DoorOpenLevel *int `yaml:"door_open_level"`
}

// ScaleConfig holds the HX711 wiring and calibration.
type ScaleConfig struct {
	DTPin             int     `yaml:"dt_pin"`
	SCKPin            int     `yaml:"sck_pin"`
	CalibrationFactor float64 `yaml:"calibration_factor"`
}

// ProbeConfig locates the DS18B20.
type ProbeConfig struct {
	Dir    string `yaml:"dir"`
	Device string `yaml:"device"`
}

// StoreConfig locates the persistent key-value file.
type StoreConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// WeightConfig holds detector thresholds and averaging sample counts.
type WeightConfig struct {
	ChangeThresholdG    *float64      `yaml:"change_threshold_g"`
	StabilityToleranceG *float64      `yaml:"stability_tolerance_g"`
	StabilityWindow     time.Duration `yaml:"stability_window"`
	DoorSamples         int           `yaml:"door_samples"`
	LiveSamples         int           `yaml:"live_samples"`
	ReportSamples       int           `yaml:"report_samples"`
	TareSamples         int           `yaml:"tare_samples"`
}

// TemperatureConfig holds the sampling cadence and acceptable band.
type TemperatureConfig struct {
	Interval time.Duration `yaml:"interval"`
	MinOKC   *float64      `yaml:"min_ok_c"`
	MaxOKC   *float64      `yaml:"max_ok_c"`
}

// AlarmConfig holds the door alarm timing.
type AlarmConfig struct {
	SoftAfter    time.Duration `yaml:"soft_after"`
	FastAfter    time.Duration `yaml:"fast_after"`
	SoftInterval time.Duration `yaml:"soft_interval"`
	FastInterval time.Duration `yaml:"fast_interval"`
	BeepDuration time.Duration `yaml:"beep_duration"`
}

// DoorConfig holds the two debounce stages of the door sensor.
type DoorConfig struct {
	EdgeDebounce time.Duration `yaml:"edge_debounce"`
	Settle       time.Duration `yaml:"settle"`
}

// SyncConfig holds the time sync protocol settings.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Mode     string        `yaml:"mode"`
}

// MQTTConfig enables the optional telemetry mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig enables the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Defaults.
const (
	DefaultDeviceID   = "fridge"
	DefaultPoll       = 20 * time.Millisecond
	DefaultSerialPort = "/dev/ttyAMA0"
)

var errConfigIsNotSet = errors.New("configuration is not set")

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(err) // defaults are always valid
	}
	return cfg
}

// Load reads configuration from path. A missing file yields the defaults
// unless mustExist is set.
func Load(path string, mustExist bool) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	cfg := &Config{}
	contents, err := os.ReadFile(filepath.Clean(path))
	switch {
	case errors.Is(err, os.ErrNotExist) && !mustExist:
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	default:
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects inconsistent values.
func Validate(c *Config) error {
	if c == nil {
		return errConfigIsNotSet
	}

	setString(&c.DeviceID, DefaultDeviceID)
	setString(&c.LogLevel, "info")
	setDuration(&c.Poll, DefaultPoll)

	setString(&c.Serial.Port, DefaultSerialPort)
	setInt(&c.Serial.Baud, serial.DefaultBaud)

	pins := gpio.DefaultPins()
	setString(&c.GPIO.Chip, pins.Chip)
	setInt(&c.GPIO.DoorPin, pins.Door)
	setInt(&c.GPIO.TarePin, pins.Tare)
	setInt(&c.GPIO.BuzzerPin, pins.Buzzer)
	if c.GPIO.DoorOpenLevel == nil {
		level := 1
		c.GPIO.DoorOpenLevel = &level
	}
	if l := *c.GPIO.DoorOpenLevel; l != 0 && l != 1 {
		return fmt.Errorf("gpio.door_open_level must be 0 or 1, got %d", l)
	}
	if err := distinctPins(c); err != nil {
		return err
	}

	setInt(&c.Scale.DTPin, scale.DefaultPinDT)
	setInt(&c.Scale.SCKPin, scale.DefaultPinSCK)
	if c.Scale.CalibrationFactor == 0 {
		c.Scale.CalibrationFactor = scale.DefaultCalibrationFactor
	}

	setString(&c.Probe.Dir, probe.DefaultDir)
	setString(&c.Store.Path, store.DefaultPath)
	setString(&c.Store.Namespace, store.DefaultNamespace)

	cd := controller.DefaultConfig()
	wd := cd.Weight
	setFloat(&c.Weight.ChangeThresholdG, wd.ChangeThreshold)
	setFloat(&c.Weight.StabilityToleranceG, wd.StabilityTolerance)
	setDuration(&c.Weight.StabilityWindow, wd.StabilityWindow)
	setInt(&c.Weight.DoorSamples, cd.DoorSamples)
	setInt(&c.Weight.LiveSamples, cd.LiveSamples)
	setInt(&c.Weight.ReportSamples, cd.ReportSamples)
	setInt(&c.Weight.TareSamples, cd.TareSamples)
	if *c.Weight.ChangeThresholdG < 0 || *c.Weight.StabilityToleranceG < 0 {
		return errors.New("weight thresholds must not be negative")
	}
	if c.Weight.DoorSamples < 0 || c.Weight.LiveSamples < 0 ||
		c.Weight.ReportSamples < 0 || c.Weight.TareSamples < 0 {
		return errors.New("weight sample counts must be positive")
	}

	td := cd.Temperature
	setDuration(&c.Temperature.Interval, td.Interval)
	setFloat(&c.Temperature.MinOKC, td.MinOK)
	setFloat(&c.Temperature.MaxOKC, td.MaxOK)
	if *c.Temperature.MinOKC > *c.Temperature.MaxOKC {
		return fmt.Errorf("temperature.min_ok_c (%v) above max_ok_c (%v)",
			*c.Temperature.MinOKC, *c.Temperature.MaxOKC)
	}

	ad := cd.Alarm
	setDuration(&c.Alarm.SoftAfter, ad.SoftAfter)
	setDuration(&c.Alarm.FastAfter, ad.FastAfter)
	setDuration(&c.Alarm.SoftInterval, ad.SoftInterval)
	setDuration(&c.Alarm.FastInterval, ad.FastInterval)
	setDuration(&c.Alarm.BeepDuration, ad.BeepDuration)
	if c.Alarm.FastAfter <= c.Alarm.SoftAfter {
		return fmt.Errorf("alarm.fast_after (%v) must be after soft_after (%v)",
			c.Alarm.FastAfter, c.Alarm.SoftAfter)
	}

	setDuration(&c.Door.EdgeDebounce, cd.EdgeDebounce)
	setDuration(&c.Door.Settle, cd.Settle)

	sd := cd.Sync
	setDuration(&c.Sync.Interval, sd.Interval)
	setDuration(&c.Sync.Timeout, sd.Timeout)
	setString(&c.Sync.Mode, string(sd.Mode))
	switch logic.SyncMode(c.Sync.Mode) {
	case logic.SyncModeMicros, logic.SyncModeAck:
	default:
		return fmt.Errorf("sync.mode must be %q or %q, got %q",
			logic.SyncModeMicros, logic.SyncModeAck, c.Sync.Mode)
	}
	if c.Sync.Timeout >= c.Sync.Interval {
		return fmt.Errorf("sync.timeout (%v) must be shorter than sync.interval (%v)",
			c.Sync.Timeout, c.Sync.Interval)
	}

	return nil
}

func distinctPins(c *Config) error {
	seen := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"door_pin", c.GPIO.DoorPin},
		{"tare_pin", c.GPIO.TarePin},
		{"buzzer_pin", c.GPIO.BuzzerPin},
	} {
		if other, ok := seen[p.pin]; ok {
			return fmt.Errorf("gpio.%s and gpio.%s share line %d", p.name, other, p.pin)
		}
		seen[p.pin] = p.name
	}
	return nil
}

// Pins returns the GPIO wiring.
func (c *Config) Pins() gpio.Pins {
	return gpio.Pins{
		Chip:         c.GPIO.Chip,
		Door:         c.GPIO.DoorPin,
		Tare:         c.GPIO.TarePin,
		Buzzer:       c.GPIO.BuzzerPin,
		DoorOpenHigh: *c.GPIO.DoorOpenLevel == 1,
	}
}

// WeightLogic returns the detector thresholds.
func (c *Config) WeightLogic() logic.WeightConfig {
	return logic.WeightConfig{
		ChangeThreshold:    *c.Weight.ChangeThresholdG,
		StabilityTolerance: *c.Weight.StabilityToleranceG,
		StabilityWindow:    c.Weight.StabilityWindow,
	}
}

// TemperatureLogic returns the sampler settings.
func (c *Config) TemperatureLogic() logic.TemperatureConfig {
	return logic.TemperatureConfig{
		Interval: c.Temperature.Interval,
		MinOK:    *c.Temperature.MinOKC,
		MaxOK:    *c.Temperature.MaxOKC,
	}
}

// AlarmLogic returns the door alarm timing.
func (c *Config) AlarmLogic() logic.AlarmConfig {
	return logic.AlarmConfig{
		SoftAfter:    c.Alarm.SoftAfter,
		FastAfter:    c.Alarm.FastAfter,
		SoftInterval: c.Alarm.SoftInterval,
		FastInterval: c.Alarm.FastInterval,
		BeepDuration: c.Alarm.BeepDuration,
	}
}

// SyncLogic returns the time sync protocol settings.
func (c *Config) SyncLogic() logic.TimeSyncConfig {
	return logic.TimeSyncConfig{
		Interval: c.Sync.Interval,
		Timeout:  c.Sync.Timeout,
		Mode:     logic.SyncMode(c.Sync.Mode),
	}
}

// Controller returns the loop settings.
func (c *Config) Controller() controller.Config {
	return controller.Config{
		Weight:        c.WeightLogic(),
		Alarm:         c.AlarmLogic(),
		Temperature:   c.TemperatureLogic(),
		Sync:          c.SyncLogic(),
		EdgeDebounce:  c.Door.EdgeDebounce,
		Settle:        c.Door.Settle,
		DoorSamples:   c.Weight.DoorSamples,
		LiveSamples:   c.Weight.LiveSamples,
		ReportSamples: c.Weight.ReportSamples,
		TareSamples:   c.Weight.TareSamples,
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

// setFloat only fills an absent value; 0 is a legal setting.
func setFloat(v **float64, def float64) {
	if *v == nil {
		*v = &def
	}
}

func setDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}
