package logic

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// SyncState is the state of the clock synchronization session.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncWaiting
)

func (s SyncState) String() string {
	if s == SyncWaiting {
		return "WAITING"
	}
	return "IDLE"
}

// SyncMode selects the handshake variant.
type SyncMode string

const (
	// SyncModeMicros: the host replies with microseconds since the Unix epoch.
	SyncModeMicros SyncMode = "micros"
	// SyncModeAck: the host replies with a literal acknowledgement token.
	SyncModeAck SyncMode = "ack"
)

// Handshake tokens.
const (
	RequestMicros = "GET_TIME"
	RequestAck    = "SYNC_TIME"
	AckToken      = "SYNC_OK"
)

// RequestToken returns the request line for the mode.
func (m SyncMode) RequestToken() string {
	if m == SyncModeAck {
		return RequestAck
	}
	return RequestMicros
}

// ErrEmptyResponse is returned for a blank response line. The session keeps waiting.
var ErrEmptyResponse = errors.New("empty sync response")

// SyncResponse is a parsed host reply.
type SyncResponse struct {
	// Micros is the host time in microseconds since the Unix epoch (micros mode).
	Micros int64
	// HasTime is set when the reply carries a time to apply.
	HasTime bool
	// Acknowledged is set when an ack-mode reply matched the token.
	Acknowledged bool
	// Malformed is set when the reply was not a clean decimal integer (micros
	// mode) or not the token (ack mode). In micros mode the leading digits are
	// still applied, zero if there are none.
	Malformed bool
}

// ParseSyncResponse parses one response line. Both the blocking startup
// exchange and the runtime exchange go through here.
func ParseSyncResponse(line string, mode SyncMode) (SyncResponse, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return SyncResponse{}, ErrEmptyResponse
	}

	if mode == SyncModeAck {
		if line == AckToken {
			return SyncResponse{Acknowledged: true}, nil
		}
		return SyncResponse{Malformed: true}, nil
	}

	end := 0
	for end < len(line) && line[end] >= '0' && line[end] <= '9' {
		end++
	}
	resp := SyncResponse{HasTime: true, Malformed: end != len(line)}
	if end == 0 {
		return resp, nil
	}
	v, err := strconv.ParseInt(line[:end], 10, 64)
	if err != nil {
		resp.Malformed = true
		return resp, nil
	}
	resp.Micros = v
	return resp, nil
}

// TimeSyncConfig holds the protocol timing.
type TimeSyncConfig struct {
	Interval time.Duration // between attempts, measured from the last attempt
	Timeout  time.Duration // how long a request may go unanswered
	Mode     SyncMode
}

// DefaultTimeSyncConfig returns hourly attempts with a 5 s timeout.
func DefaultTimeSyncConfig() TimeSyncConfig {
	return TimeSyncConfig{
		Interval: time.Hour,
		Timeout:  5 * time.Second,
		Mode:     SyncModeMicros,
	}
}

// SyncOutcome is what a poll of the session produced.
type SyncOutcome int

const (
	SyncNone SyncOutcome = iota
	SyncCompleted
	SyncRejected
	SyncTimedOut
)

// SyncResult is returned from Poll.
type SyncResult struct {
	Outcome  SyncOutcome
	Response SyncResponse
}

// TimeSync is the IDLE/WAITING request-response machine. It never blocks;
// the caller sends the request token and feeds it response lines.
type TimeSync struct {
	cfg           TimeSyncConfig
	state         SyncState
	requestedAt   Millis
	lastAttemptAt Millis
}

// NewTimeSync creates an idle session. The first attempt is due one interval after now.
func NewTimeSync(cfg TimeSyncConfig, now Millis) *TimeSync {
	return &TimeSync{cfg: cfg, lastAttemptAt: now}
}

// Due reports whether a new request should be sent at now.
func (t *TimeSync) Due(now Millis) bool {
	return t.state == SyncIdle && now.Reached(t.lastAttemptAt, t.cfg.Interval)
}

// Request records that the request token was sent at now.
func (t *TimeSync) Request(now Millis) {
	t.state = SyncWaiting
	t.requestedAt = now
	t.lastAttemptAt = now
}

// Waiting reports whether a response is outstanding.
func (t *TimeSync) Waiting() bool {
	return t.state == SyncWaiting
}

// Poll advances a waiting session. ok reports whether a line was available.
// A blank line is consumed without ending the session.
func (t *TimeSync) Poll(now Millis, line string, ok bool) SyncResult {
	if t.state != SyncWaiting {
		return SyncResult{}
	}

	if ok {
		resp, err := ParseSyncResponse(line, t.cfg.Mode)
		if err == nil {
			t.state = SyncIdle
			if t.cfg.Mode == SyncModeAck && !resp.Acknowledged {
				return SyncResult{Outcome: SyncRejected, Response: resp}
			}
			return SyncResult{Outcome: SyncCompleted, Response: resp}
		}
	}

	if now.Since(t.requestedAt) > DurationMillis(t.cfg.Timeout) {
		t.state = SyncIdle
		return SyncResult{Outcome: SyncTimedOut}
	}
	return SyncResult{}
}

// Expire ends a waiting session without a response.
func (t *TimeSync) Expire() {
	t.state = SyncIdle
}

// State returns the session state.
func (t *TimeSync) State() SyncState {
	return t.state
}

// Mode returns the handshake mode.
func (t *TimeSync) Mode() SyncMode {
	return t.cfg.Mode
}
