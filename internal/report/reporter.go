package report

import (
	"fmt"

	"go.uber.org/zap"
)

// Sink is the host line transport.
type Sink interface {
	SendLine(line string) error
}

// Mirror receives a copy of every event after the host line was written.
// Errors are logged and never reach the host stream. Publish runs on the
// controller loop, so implementations must not wait on the network.
type Mirror interface {
	Publish(eventType string, payload []byte) error
}

// Clock supplies event timestamps in microseconds since the Unix epoch.
type Clock interface {
	UnixMicro() int64
}

// Counts tallies emitted events by type.
type Counts struct {
	DoorChange   int
	WeightChange int
	StatusReport int
	TareButton   int
}

// Total returns the number of events emitted.
func (c Counts) Total() int {
	return c.DoorChange + c.WeightChange + c.StatusReport + c.TareButton
}

// Reporter stamps, formats and writes events in the order they are emitted.
// It is owned by the controller loop and is not safe for concurrent use.
type Reporter struct {
	sink    Sink
	clock   Clock
	log     *zap.SugaredLogger
	mirrors []Mirror
	counts  Counts
}

// NewReporter creates a Reporter writing to sink and then to each mirror.
func NewReporter(sink Sink, clock Clock, log *zap.SugaredLogger, mirrors ...Mirror) *Reporter {
	return &Reporter{
		sink:    sink,
		clock:   clock,
		log:     log,
		mirrors: mirrors,
	}
}

// AddMirror registers another mirror.
func (r *Reporter) AddMirror(m Mirror) {
	r.mirrors = append(r.mirrors, m)
}

// Emit stamps ev with the current wall time and writes it as one line.
// The returned error concerns only the host sink.
func (r *Reporter) Emit(ev Event) error {
	ev.Timestamp = r.clock.UnixMicro()

	payload, err := Format(ev)
	if err != nil {
		return fmt.Errorf("format %s: %w", ev.Type, err)
	}

	r.count(ev.Type)
	r.log.Debugf("event: %s", payload)

	sendErr := r.sink.SendLine(string(payload))
	if sendErr != nil {
		sendErr = fmt.Errorf("send %s: %w", ev.Type, sendErr)
	}

	for _, m := range r.mirrors {
		if err := m.Publish(string(ev.Type), payload); err != nil {
			r.log.Warnf("mirror %s: %v", ev.Type, err)
		}
	}

	return sendErr
}

// Counts returns a copy of the per-type tallies.
func (r *Reporter) Counts() Counts {
	return r.counts
}

func (r *Reporter) count(t EventType) {
	switch t {
	case EventDoorChange:
		r.counts.DoorChange++
	case EventWeightChange:
		r.counts.WeightChange++
	case EventStatusReport:
		r.counts.StatusReport++
	case EventTareButton:
		r.counts.TareButton++
	}
}
