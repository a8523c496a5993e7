package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseSyncResponseMicros(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line          string
		wantMicros    int64
		wantMalformed bool
	}{
		{"1767225600123456", 1767225600123456, false},
		{"  1767225600123456\r", 1767225600123456, false},
		{"1767225600abc", 1767225600, true},
		{"abc", 0, true},
		{"99999999999999999999999", 0, true},
	}

	for _, tt := range tests {
		resp, err := ParseSyncResponse(tt.line, SyncModeMicros)
		require.NoError(t, err, tt.line)
		require.True(t, resp.HasTime, tt.line)
		require.Equal(t, tt.wantMicros, resp.Micros, tt.line)
		require.Equal(t, tt.wantMalformed, resp.Malformed, tt.line)
	}
}

func TestParseSyncResponseEmpty(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"", "   ", "\r"} {
		_, err := ParseSyncResponse(line, SyncModeMicros)
		require.ErrorIs(t, err, ErrEmptyResponse, "%q", line)
	}
}

func TestParseSyncResponseAck(t *testing.T) {
	t.Parallel()

	resp, err := ParseSyncResponse("SYNC_OK\r", SyncModeAck)
	require.NoError(t, err)
	require.True(t, resp.Acknowledged)
	require.False(t, resp.HasTime)

	resp, _ = ParseSyncResponse("NOPE", SyncModeAck)
	require.False(t, resp.Acknowledged)
	require.True(t, resp.Malformed)
}

func TestRequestToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, "GET_TIME", SyncModeMicros.RequestToken())
	require.Equal(t, "SYNC_TIME", SyncModeAck.RequestToken())
}

func TestTimeSyncDueHourly(t *testing.T) {
	t.Parallel()

	ts := NewTimeSync(DefaultTimeSyncConfig(), 0)

	require.False(t, ts.Due(after(0, 59*time.Minute)), "not due before an hour")
	hour := after(0, time.Hour)
	require.True(t, ts.Due(hour))

	ts.Request(hour)
	require.False(t, ts.Due(after(hour, 2*time.Hour)), "never due while waiting")
}

func TestTimeSyncCompletes(t *testing.T) {
	t.Parallel()

	ts := NewTimeSync(DefaultTimeSyncConfig(), 0)
	ts.Request(1000)

	require.Equal(t, SyncNone, ts.Poll(1500, "", false).Outcome)

	res := ts.Poll(2000, "1767225600000000", true)
	require.Equal(t, SyncCompleted, res.Outcome)
	require.Equal(t, int64(1767225600000000), res.Response.Micros)
	require.Equal(t, SyncIdle, ts.State())

	// The hourly schedule runs from the request, not the reply.
	require.False(t, ts.Due(after(1000, time.Hour-time.Millisecond)))
	require.True(t, ts.Due(after(1000, time.Hour)))
}

func TestTimeSyncBlankLineKeepsWaiting(t *testing.T) {
	t.Parallel()

	ts := NewTimeSync(DefaultTimeSyncConfig(), 0)
	ts.Request(0)

	require.Equal(t, SyncNone, ts.Poll(100, "\r", true).Outcome)
	require.True(t, ts.Waiting(), "blank line must not end the session")
}

func TestTimeSyncTimeout(t *testing.T) {
	t.Parallel()

	ts := NewTimeSync(DefaultTimeSyncConfig(), 0)
	ts.Request(1000)

	require.Equal(t, SyncNone, ts.Poll(6000, "", false).Outcome, "exactly 5 s is not yet a timeout")

	res := ts.Poll(6001, "", false)
	require.Equal(t, SyncTimedOut, res.Outcome)
	require.Equal(t, SyncIdle, ts.State())
	require.False(t, res.Response.HasTime)

	// The next attempt is an hour after the failed one, not sooner.
	require.False(t, ts.Due(after(1000, 59*time.Minute)))
	require.True(t, ts.Due(after(1000, time.Hour)))
}

func TestTimeSyncAckRejected(t *testing.T) {
	t.Parallel()

	cfg := DefaultTimeSyncConfig()
	cfg.Mode = SyncModeAck
	ts := NewTimeSync(cfg, 0)
	ts.Request(0)

	require.Equal(t, SyncRejected, ts.Poll(10, "WHAT", true).Outcome)
	require.False(t, ts.Waiting(), "unexpected reply still ends the session")
}

func TestTimeSyncPollWhenIdle(t *testing.T) {
	t.Parallel()

	ts := NewTimeSync(DefaultTimeSyncConfig(), 0)
	require.Equal(t, SyncNone, ts.Poll(10, "123", true).Outcome)
}
