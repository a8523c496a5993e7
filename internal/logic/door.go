package logic

import "time"

// AlarmPhase is the escalation level of the door-open alarm.
type AlarmPhase int

const (
	PhaseNone AlarmPhase = iota
	PhaseSoft
	PhaseFast
)

func (p AlarmPhase) String() string {
	switch p {
	case PhaseSoft:
		return "SOFT"
	case PhaseFast:
		return "FAST"
	default:
		return "NONE"
	}
}

// AlarmConfig holds door alarm timing.
type AlarmConfig struct {
	SoftAfter    time.Duration // open time before soft beeping starts
	FastAfter    time.Duration // open time before fast beeping starts
	SoftInterval time.Duration // buzzer off time in the soft phase
	FastInterval time.Duration // buzzer off time in the fast phase
	BeepDuration time.Duration // buzzer on time in either phase
}

// DefaultAlarmConfig returns the stock timing (20 s / 30 s, 1000 ms / 300 ms, 100 ms).
func DefaultAlarmConfig() AlarmConfig {
	return AlarmConfig{
		SoftAfter:    20 * time.Second,
		FastAfter:    30 * time.Second,
		SoftInterval: 1000 * time.Millisecond,
		FastInterval: 300 * time.Millisecond,
		BeepDuration: 100 * time.Millisecond,
	}
}

// DoorState is the confirmed door position. OpenedAt is only meaningful while IsOpen.
type DoorState struct {
	IsOpen   bool
	OpenedAt Millis
}

// AlarmState is the buzzer alarm while the door is open.
type AlarmState struct {
	Phase      AlarmPhase
	BuzzerOn   bool
	LastBeepAt Millis
}

// DoorTransition is the outcome of applying a settled door level.
type DoorTransition int

const (
	DoorUnchanged DoorTransition = iota
	DoorOpened
	DoorClosed
)

// BuzzerEffect tells the caller whether to drive the buzzer.
type BuzzerEffect struct {
	Changed bool
	On      bool
}

// Door tracks door position and escalates the buzzer alarm the longer the
// door stays open.
type Door struct {
	cfg   AlarmConfig
	door  DoorState
	alarm AlarmState
}

// NewDoor creates a closed door with a silent alarm.
func NewDoor(cfg AlarmConfig) *Door {
	return &Door{cfg: cfg}
}

// Apply takes a settled door level. A level equal to the current state is a
// spurious edge and changes nothing. Both real transitions reset the alarm;
// the caller must force the buzzer off.
func (d *Door) Apply(now Millis, open bool) DoorTransition {
	switch {
	case open && !d.door.IsOpen:
		d.door = DoorState{IsOpen: true, OpenedAt: now}
		d.alarm = AlarmState{Phase: PhaseNone, LastBeepAt: now}
		return DoorOpened
	case !open && d.door.IsOpen:
		d.door = DoorState{}
		d.alarm = AlarmState{Phase: PhaseNone, LastBeepAt: now}
		return DoorClosed
	default:
		return DoorUnchanged
	}
}

// PhaseFor returns the alarm phase for a door that has been open for elapsed ms.
func (d *Door) PhaseFor(elapsed uint32) AlarmPhase {
	switch {
	case elapsed >= DurationMillis(d.cfg.FastAfter):
		return PhaseFast
	case elapsed >= DurationMillis(d.cfg.SoftAfter):
		return PhaseSoft
	default:
		return PhaseNone
	}
}

// Tick advances the alarm. While a phase is active the buzzer is a square
// wave: on for BeepDuration, off for the phase interval.
func (d *Door) Tick(now Millis) BuzzerEffect {
	if !d.door.IsOpen {
		return BuzzerEffect{}
	}

	// Phase never regresses while the door stays open.
	if phase := d.PhaseFor(now.Since(d.door.OpenedAt)); phase > d.alarm.Phase {
		d.alarm.Phase = phase
	}
	if d.alarm.Phase == PhaseNone {
		return BuzzerEffect{}
	}

	interval := d.cfg.SoftInterval
	if d.alarm.Phase == PhaseFast {
		interval = d.cfg.FastInterval
	}

	if d.alarm.BuzzerOn {
		if now.Reached(d.alarm.LastBeepAt, d.cfg.BeepDuration) {
			d.alarm.BuzzerOn = false
			d.alarm.LastBeepAt = now
			return BuzzerEffect{Changed: true, On: false}
		}
		return BuzzerEffect{}
	}

	if now.Reached(d.alarm.LastBeepAt, interval) {
		d.alarm.BuzzerOn = true
		d.alarm.LastBeepAt = now
		return BuzzerEffect{Changed: true, On: true}
	}
	return BuzzerEffect{}
}

// State returns the door position.
func (d *Door) State() DoorState {
	return d.door
}

// Alarm returns the alarm state.
func (d *Door) Alarm() AlarmState {
	return d.alarm
}
