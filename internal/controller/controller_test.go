package controller

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/probe"
	"github.com/sweeney/fridge-sensor/internal/scale"
	"github.com/sweeney/fridge-sensor/internal/serial"
	"github.com/sweeney/fridge-sensor/internal/store"
)

const hostMicros = int64(1800000000000000)

type rig struct {
	clock *FakeClock
	wall  *WallClock
	board *gpio.FakeBoard
	cell  *scale.FakeCell
	probe *probe.FakeProbe
	store *store.Memory
	host  *serial.FakeTransport
	ctrl  *Controller
	slept []time.Duration
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()

	r := &rig{
		clock: NewFakeClock(0),
		cell:  scale.NewFakeCell(5000),
		probe: probe.NewFakeProbe(3.2),
		store: store.NewMemory(),
		host:  serial.NewFakeTransport(),
	}
	base := time.Unix(1767225600, 0)
	r.wall = NewWallClock(func() time.Time {
		return base.Add(time.Duration(r.clock.Millis()) * time.Millisecond)
	})

	capture := logic.NewInputCapture(cfg.EdgeDebounce)
	r.board = gpio.NewFakeBoard(EdgeHandlers(capture, r.clock))
	r.ctrl = New(cfg, Deps{
		Clock:   r.clock,
		Wall:    r.wall,
		Capture: capture,
		Board:   r.board,
		Cell:    r.cell,
		Probe:   r.probe,
		Store:   r.store,
		Host:    r.host,
		Sleep: func(d time.Duration) {
			r.slept = append(r.slept, d)
			r.clock.Advance(d)
		},
	})
	return r
}

// start runs Startup with a host that answers the sync request, then
// forgets the handshake lines.
func (r *rig) start(t *testing.T) {
	t.Helper()

	r.host.Feed("1800000000000000")
	require.NoError(t, r.ctrl.Startup(context.Background()))
	r.host.Reset()
	r.cell.Reset()
}

func (r *rig) events(t *testing.T) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range r.host.Sent() {
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func (r *rig) eventsOf(t *testing.T, typ string) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, ev := range r.events(t) {
		if ev["event"] == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *rig) runFor(d, tick time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		r.clock.Advance(tick)
		r.ctrl.Step()
	}
}

func countLines(lines []string, want string) int {
	n := 0
	for _, l := range lines {
		if l == want {
			n++
		}
	}
	return n
}

func TestStartupRestoresTareAndSyncs(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	require.NoError(t, r.store.PutLong(store.KeyTareOffset, 1000))
	r.cell.ZeroRaw = 1000
	r.host.Feed("1800000000000000")

	require.NoError(t, r.ctrl.Startup(context.Background()))

	require.Equal(t, []string{logic.RequestMicros}, r.host.Sent())
	require.Equal(t, int64(1000), r.cell.Offset())
	require.Equal(t, []int{10}, r.cell.Requests)
	require.True(t, r.wall.Synced())
	require.Equal(t, hostMicros, r.wall.UnixMicro())

	st := r.ctrl.State()
	require.True(t, st.Ready)
	require.Equal(t, 5000.0, st.Baseline)
	require.Equal(t, int64(1000), st.TareOffset)
	require.Equal(t, logic.SyncIdle, st.Sync)
	require.Equal(t, hostMicros, st.LastSync)
	require.True(t, st.ClockSynced)
}

func TestStartupSyncTimeoutIsNotFatal(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Sync.Timeout = 20 * time.Millisecond
	r := newRig(t, cfg)

	require.NoError(t, r.ctrl.Startup(context.Background()))
	require.False(t, r.wall.Synced())
	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)
	require.True(t, r.ctrl.State().Ready)
}

func TestStartupCancelled(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, r.ctrl.Startup(ctx), context.Canceled)
	require.False(t, r.ctrl.State().Ready)
}

func TestStartupAckMode(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Sync.Mode = logic.SyncModeAck
	r := newRig(t, cfg)
	r.host.Feed(logic.AckToken)

	require.NoError(t, r.ctrl.Startup(context.Background()))
	require.Equal(t, []string{logic.RequestAck}, r.host.Sent())
	require.False(t, r.wall.Synced())
	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)
}

func TestStartupBlankLineKeepsWaiting(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.host.Feed("", "1800000000000000")

	require.NoError(t, r.ctrl.Startup(context.Background()))
	require.True(t, r.wall.Synced())
}

func TestTareCommandDuringStartupSync(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.host.Feed(TareCommand, "1800000000000000")
	require.NoError(t, r.ctrl.Startup(context.Background()))
	require.True(t, r.wall.Synced())
	r.host.Reset()

	r.ctrl.Step()

	tares := r.eventsOf(t, "tare_button")
	require.Len(t, tares, 1)
	v, err := r.store.GetLong(store.KeyTareOffset, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5000), v)
}

func TestFirstStepEmitsStatusReport(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.ctrl.Step()

	require.Equal(t, []string{
		`{"event":"status_report","timestamp":1800000000000000,"door_open":false,"temperature_c":3.20,"weight_kg":5.000,"status_code":1}`,
	}, r.host.Sent())
	require.Equal(t, []int{1, 5}, r.cell.Requests)
	require.Equal(t, 1, r.probe.Reads)

	r.runFor(29*time.Second, 100*time.Millisecond)
	require.Len(t, r.eventsOf(t, "status_report"), 1)

	r.runFor(time.Second, 100*time.Millisecond)
	require.Len(t, r.eventsOf(t, "status_report"), 2)
}

func TestDisconnectedProbeReportsFault(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.probe.Unplug()

	r.ctrl.Step()

	require.Equal(t, []string{
		`{"event":"status_report","timestamp":1800000000000000,"door_open":false,"temperature_c":-127.00,"weight_kg":5.000,"status_code":3}`,
	}, r.host.Sent())
	require.Equal(t, logic.StatusFault, r.ctrl.State().Temperature.Code)
}

func TestDoorOpenAndClose(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.ctrl.Step()

	r.board.SetDoor(true)
	r.ctrl.Step()

	require.Equal(t, []time.Duration{50 * time.Millisecond}, r.slept)
	require.Equal(t, []bool{false}, r.board.BuzzerWrites)
	opened := r.eventsOf(t, "door_change")
	require.Len(t, opened, 1)
	require.Equal(t, "open", opened[0]["status"])
	require.Equal(t, 5000.0, opened[0]["initial_weight_g"])
	require.True(t, r.ctrl.State().Door.IsOpen)

	r.runFor(21*time.Second, 10*time.Millisecond)
	require.Equal(t, logic.PhaseSoft, r.ctrl.State().Alarm.Phase)
	require.Contains(t, r.board.BuzzerWrites, true)

	r.cell.SetLoad(4500)
	r.board.SetDoor(false)
	r.ctrl.Step()

	doors := r.eventsOf(t, "door_change")
	require.Len(t, doors, 2)
	require.Equal(t, "closed", doors[1]["status"])
	require.Equal(t, 4500.0, doors[1]["final_weight_g"])
	require.NotContains(t, doors[1], "initial_weight_g")

	st := r.ctrl.State()
	require.False(t, st.Door.IsOpen)
	require.Equal(t, logic.PhaseNone, st.Alarm.Phase)
	require.False(t, r.board.BuzzerOn())
	require.Equal(t, 4500.0, st.Baseline)
	require.Empty(t, r.eventsOf(t, "weight_change"))
}

func TestSpuriousDoorEdge(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.board.FireDoor()
	r.ctrl.Step()

	require.Len(t, r.slept, 1)
	require.Empty(t, r.eventsOf(t, "door_change"))
	require.Empty(t, r.board.BuzzerWrites)
}

func TestDoorEdgesDebounced(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.board.SetDoor(true)
	r.ctrl.Step()
	require.True(t, r.ctrl.State().Door.IsOpen)

	r.clock.Advance(100 * time.Millisecond)
	r.board.SetDoor(false)
	r.ctrl.Step()
	require.True(t, r.ctrl.State().Door.IsOpen, "edge inside the debounce window is dropped")

	r.clock.Advance(200 * time.Millisecond)
	r.board.FireDoor()
	r.ctrl.Step()
	require.False(t, r.ctrl.State().Door.IsOpen)
	require.Len(t, r.eventsOf(t, "door_change"), 2)
}

func TestDoorReadErrorSkipsTransition(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.board.ReadError = errors.New("line busy")

	r.board.SetDoor(true)
	r.ctrl.Step()

	require.False(t, r.ctrl.State().Door.IsOpen)
	require.Empty(t, r.eventsOf(t, "door_change"))
}

func TestWeightChange(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.ctrl.Step()

	r.cell.SetLoad(5200)
	r.clock.Advance(10 * time.Millisecond)
	r.ctrl.Step()
	require.True(t, r.ctrl.State().Candidate.Active)

	r.cell.SetLoad(5190)
	r.runFor(290*time.Millisecond, 10*time.Millisecond)
	require.Empty(t, r.eventsOf(t, "weight_change"))

	r.clock.Advance(10 * time.Millisecond)
	r.ctrl.Step()

	changes := r.eventsOf(t, "weight_change")
	require.Len(t, changes, 1)
	require.Equal(t, 200.0, changes[0]["change_g"])
	require.Equal(t, 5200.0, r.ctrl.State().Baseline)
	require.False(t, r.ctrl.State().Candidate.Active)
}

func TestWeightReadErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.cell.ReadError = errors.New("hx711 not ready")

	r.ctrl.Step()
	r.ctrl.Step()

	reports := r.eventsOf(t, "status_report")
	require.Len(t, reports, 1)
	require.Equal(t, 5.0, reports[0]["weight_kg"])
	require.Empty(t, r.eventsOf(t, "weight_change"))

	r.cell.ReadError = nil
	r.ctrl.Step()
}

func TestTareButton(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.board.PressTare()
	r.ctrl.Step()

	require.Equal(t, 20, r.cell.Requests[0])
	require.Equal(t, int64(5000), r.cell.Offset())
	require.Equal(t, 0.0, r.ctrl.State().Baseline)

	lines := r.host.Sent()
	require.Equal(t, `{"event":"tare_button","message":"Tare offset saved","timestamp":1800000000000000}`, lines[0])

	reports := r.eventsOf(t, "status_report")
	require.Len(t, reports, 1)
	require.Equal(t, 0.0, reports[0]["weight_kg"])

	v, err := r.store.GetLong(store.KeyTareOffset, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5000), v)
}

func TestTareSaveFailureStillReports(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.store.PutError = errors.New("read-only filesystem")

	r.board.PressTare()
	r.ctrl.Step()

	require.Equal(t, int64(5000), r.cell.Offset())
	require.Equal(t, 0.0, r.ctrl.State().Baseline)
	require.Equal(t, 1, r.store.Puts)
	require.Len(t, r.eventsOf(t, "tare_button"), 1)
	require.Equal(t, 1, r.ctrl.State().Counts.TareButton)

	v, err := r.store.GetLong(store.KeyTareOffset, 0)
	require.NoError(t, err)
	require.Zero(t, v, "failed save leaves the stored offset untouched")
}

func TestRuntimeSync(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.clock.Advance(time.Hour - time.Millisecond)
	r.ctrl.Step()
	require.Zero(t, countLines(r.host.Sent(), logic.RequestMicros))

	r.clock.Advance(time.Millisecond)
	r.ctrl.Step()
	require.Equal(t, 1, countLines(r.host.Sent(), logic.RequestMicros))
	require.Equal(t, logic.SyncWaiting, r.ctrl.State().Sync)

	r.host.Feed("1900000000000000")
	r.clock.Advance(10 * time.Millisecond)
	r.ctrl.Step()

	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)
	require.Equal(t, int64(1900000000000000), r.wall.UnixMicro())
	require.Equal(t, int64(1900000000000000), r.ctrl.State().LastSync)
}

func TestRuntimeSyncTimeoutRetriesHourly(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.clock.Advance(time.Hour)
	r.ctrl.Step()
	require.Equal(t, logic.SyncWaiting, r.ctrl.State().Sync)

	r.clock.Advance(5 * time.Second)
	r.ctrl.Step()
	require.Equal(t, logic.SyncWaiting, r.ctrl.State().Sync)

	r.clock.Advance(time.Millisecond)
	r.ctrl.Step()
	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)

	r.clock.Advance(time.Hour - 5*time.Second - 2*time.Millisecond)
	r.ctrl.Step()
	require.Equal(t, 1, countLines(r.host.Sent(), logic.RequestMicros))

	r.clock.Advance(time.Millisecond)
	r.ctrl.Step()
	require.Equal(t, 2, countLines(r.host.Sent(), logic.RequestMicros))
}

func TestHostLinesWhileIdleAreIgnored(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.host.Feed("1234")
	r.ctrl.Step()

	require.Equal(t, hostMicros, r.ctrl.State().LastSync)
	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)
}

func TestTareCommandFromHost(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.host.Feed(TareCommand)
	r.ctrl.Step()

	require.Len(t, r.eventsOf(t, "tare_button"), 1)
	require.Equal(t, int64(5000), r.cell.Offset())
	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)
}

func TestRuntimeSyncMalformedReplyAppliesLeadingDigits(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.clock.Advance(time.Hour)
	r.ctrl.Step()
	r.host.Feed("1900000000000000garbage")
	r.ctrl.Step()

	require.Equal(t, logic.SyncIdle, r.ctrl.State().Sync)
	require.Equal(t, int64(1900000000000000), r.wall.UnixMicro())
}

func TestEmitCounts(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)

	r.board.PressTare()
	r.ctrl.Step()
	r.board.SetDoor(true)
	r.ctrl.Step()

	c := r.ctrl.State().Counts
	require.Equal(t, 1, c.TareButton)
	require.Equal(t, 1, c.StatusReport)
	require.Equal(t, 1, c.DoorChange)
	require.Equal(t, 3, c.Total())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	r := newRig(t, DefaultConfig())
	r.start(t)
	r.ctrl.Step()

	require.Equal(t, "door=closed alarm=NONE weight=5000.0g temp=3.20C status=OK sync=IDLE", r.ctrl.State().String())
}

func TestWallClock(t *testing.T) {
	t.Parallel()

	now := time.Unix(1767225600, 0)
	w := NewWallClock(func() time.Time { return now })
	require.False(t, w.Synced())
	require.Equal(t, now.UnixMicro(), w.UnixMicro())

	w.Set(hostMicros)
	now = now.Add(1500 * time.Millisecond)
	require.True(t, w.Synced())
	require.Equal(t, hostMicros+1500000, w.UnixMicro())
}

func TestSystemClockStartsAtZero(t *testing.T) {
	t.Parallel()

	require.Less(t, uint32(NewSystemClock().Millis()), uint32(1000))
}

func TestEdgeHandlers(t *testing.T) {
	t.Parallel()

	clock := NewFakeClock(0)
	capture := logic.NewInputCapture(200 * time.Millisecond)
	h := EdgeHandlers(capture, clock)

	h.Door()
	h.Door()
	h.Tare()

	require.True(t, capture.TakeDoor())
	require.False(t, capture.TakeDoor())
	require.True(t, capture.TakeTare())
}
