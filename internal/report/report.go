// Package report serializes controller events into the line-delimited JSON
// records sent to the host. One event is one line; nothing is batched.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sweeney/fridge-sensor/internal/logic"
)

// EventType is the value of the "event" discriminator.
type EventType string

const (
	EventDoorChange   EventType = "door_change"
	EventWeightChange EventType = "weight_change"
	EventStatusReport EventType = "status_report"
	EventTareButton   EventType = "tare_button"
)

// TareMessage is the fixed message carried by tare_button events.
const TareMessage = "Tare offset saved"

// Door status values.
const (
	DoorOpen   = "open"
	DoorClosed = "closed"
)

// Event is one telemetry record before serialization.
// Only the fields relevant to Type are used.
type Event struct {
	Type EventType
	// Timestamp is microseconds since the Unix epoch, from the synchronized clock.
	Timestamp int64

	DoorOpen bool
	WeightG  float64 // door_change: initial or final weight

	ChangeG float64 // weight_change

	TemperatureC float64 // status_report
	WeightKg     float64
	StatusCode   logic.StatusCode
}

// DoorChange builds a door_change event. weightG is the initial weight when
// the door opened and the final weight when it closed.
func DoorChange(open bool, weightG float64) Event {
	return Event{Type: EventDoorChange, DoorOpen: open, WeightG: weightG}
}

// WeightChange builds a weight_change event.
func WeightChange(changeG float64) Event {
	return Event{Type: EventWeightChange, ChangeG: changeG}
}

// StatusReport builds the periodic status_report heartbeat.
func StatusReport(doorOpen bool, temperatureC, weightKg float64, code logic.StatusCode) Event {
	return Event{
		Type:         EventStatusReport,
		DoorOpen:     doorOpen,
		TemperatureC: temperatureC,
		WeightKg:     weightKg,
		StatusCode:   code,
	}
}

// TareButton builds a tare_button event.
func TareButton() Event {
	return Event{Type: EventTareButton}
}

type doorPayload struct {
	Event          EventType   `json:"event"`
	Timestamp      int64       `json:"timestamp"`
	Status         string      `json:"status"`
	InitialWeightG json.Number `json:"initial_weight_g,omitempty"`
	FinalWeightG   json.Number `json:"final_weight_g,omitempty"`
}

type weightPayload struct {
	Event     EventType   `json:"event"`
	Timestamp int64       `json:"timestamp"`
	ChangeG   json.Number `json:"change_g"`
}

type statusPayload struct {
	Event        EventType   `json:"event"`
	Timestamp    int64       `json:"timestamp"`
	DoorOpen     bool        `json:"door_open"`
	TemperatureC json.Number `json:"temperature_c"`
	WeightKg     json.Number `json:"weight_kg"`
	StatusCode   int         `json:"status_code"`
}

type tarePayload struct {
	Event     EventType `json:"event"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

// Format returns the single-line JSON encoding of ev, without a trailing newline.
// Weights are written with no decimals, temperatures with two and
// kilograms with three.
func Format(ev Event) ([]byte, error) {
	var v any
	switch ev.Type {
	case EventDoorChange:
		p := doorPayload{Event: ev.Type, Timestamp: ev.Timestamp}
		if ev.DoorOpen {
			p.Status = DoorOpen
			p.InitialWeightG = fixed(ev.WeightG, 0)
		} else {
			p.Status = DoorClosed
			p.FinalWeightG = fixed(ev.WeightG, 0)
		}
		v = p
	case EventWeightChange:
		v = weightPayload{Event: ev.Type, Timestamp: ev.Timestamp, ChangeG: fixed(ev.ChangeG, 0)}
	case EventStatusReport:
		v = statusPayload{
			Event:        ev.Type,
			Timestamp:    ev.Timestamp,
			DoorOpen:     ev.DoorOpen,
			TemperatureC: fixed(ev.TemperatureC, 2),
			WeightKg:     fixed(ev.WeightKg, 3),
			StatusCode:   int(ev.StatusCode),
		}
	case EventTareButton:
		v = tarePayload{Event: ev.Type, Message: TareMessage, Timestamp: ev.Timestamp}
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	return json.Marshal(v)
}

func fixed(f float64, decimals int) json.Number {
	return json.Number(strconv.FormatFloat(f, 'f', decimals, 64))
}
