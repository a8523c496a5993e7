// Package controller runs the fridge monitor's cooperative loop. One
// Controller owns every state machine and all sensor access; only the edge
// flags in logic.InputCapture are touched from another goroutine.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/fridge-sensor/internal/gpio"
	"github.com/sweeney/fridge-sensor/internal/logic"
	"github.com/sweeney/fridge-sensor/internal/probe"
	"github.com/sweeney/fridge-sensor/internal/report"
	"github.com/sweeney/fridge-sensor/internal/scale"
	"github.com/sweeney/fridge-sensor/internal/serial"
	"github.com/sweeney/fridge-sensor/internal/store"
)

// TareCommand is the host line that requests a tare, same as the button.
const TareCommand = "TARE"

// Config holds the loop's tunables.
type Config struct {
	Weight      logic.WeightConfig
	Alarm       logic.AlarmConfig
	Temperature logic.TemperatureConfig
	Sync        logic.TimeSyncConfig

	// EdgeDebounce gates door edges at capture time.
	EdgeDebounce time.Duration
	// Settle is the wait before re-reading the door level after an edge.
	Settle time.Duration

	// Averaged read sizes.
	DoorSamples   int
	LiveSamples   int
	ReportSamples int
	TareSamples   int
}

// DefaultConfig returns the stock firmware settings.
func DefaultConfig() Config {
	return Config{
		Weight:        logic.DefaultWeightConfig(),
		Alarm:         logic.DefaultAlarmConfig(),
		Temperature:   logic.DefaultTemperatureConfig(),
		Sync:          logic.DefaultTimeSyncConfig(),
		EdgeDebounce:  200 * time.Millisecond,
		Settle:        50 * time.Millisecond,
		DoorSamples:   10,
		LiveSamples:   1,
		ReportSamples: 5,
		TareSamples:   20,
	}
}

// Deps are the collaborators the loop drives.
type Deps struct {
	Log     *zap.SugaredLogger
	Clock   Clock
	Wall    *WallClock
	Capture *logic.InputCapture
	Board   gpio.Board
	Cell    scale.Cell
	Probe   probe.Reader
	Store   store.Store
	Host    serial.Transport
	Mirrors []report.Mirror
	// Sleep waits for the door level to settle. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// EdgeHandlers wires board callbacks to capture. They only set flags.
func EdgeHandlers(capture *logic.InputCapture, clock Clock) gpio.EdgeHandlers {
	return gpio.EdgeHandlers{
		Door: func() { capture.DoorEdge(clock.Millis()) },
		Tare: capture.TareEdge,
	}
}

// Controller is the loop context.
type Controller struct {
	cfg Config
	log *zap.SugaredLogger

	clock   Clock
	wall    *WallClock
	capture *logic.InputCapture
	board   gpio.Board
	cell    scale.Cell
	probe   probe.Reader
	store   store.Store
	host    serial.Transport
	sleep   func(time.Duration)

	reporter *report.Reporter
	door     *logic.Door
	weight   *logic.WeightDetector
	temp     *logic.TemperatureSampler
	sync     *logic.TimeSync

	tareOffset int64
	lastSyncAt int64 // wall micros of the last applied host time
	cellFault  bool
	ready      bool
}

// New creates a Controller. Startup must run before the first Step.
func New(cfg Config, d Deps) *Controller {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	if d.Wall == nil {
		d.Wall = NewWallClock(nil)
	}
	if d.Capture == nil {
		d.Capture = logic.NewInputCapture(cfg.EdgeDebounce)
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}

	return &Controller{
		cfg:      cfg,
		log:      d.Log,
		clock:    d.Clock,
		wall:     d.Wall,
		capture:  d.Capture,
		board:    d.Board,
		cell:     d.Cell,
		probe:    d.Probe,
		store:    d.Store,
		host:     d.Host,
		sleep:    d.Sleep,
		reporter: report.NewReporter(d.Host, d.Wall, d.Log, d.Mirrors...),
		door:     logic.NewDoor(cfg.Alarm),
		weight:   logic.NewWeightDetector(cfg.Weight, 0),
		temp:     logic.NewTemperatureSampler(cfg.Temperature),
		sync:     logic.NewTimeSync(cfg.Sync, d.Clock.Millis()),
	}
}

// Capture returns the edge flags, for wiring board callbacks.
func (c *Controller) Capture() *logic.InputCapture {
	return c.capture
}

// Startup restores the tare offset, takes the initial weight baseline and
// performs one blocking time sync. A sync timeout is not an error; only a
// cancelled ctx is.
func (c *Controller) Startup(ctx context.Context) error {
	offset, err := c.store.GetLong(store.KeyTareOffset, 0)
	if err != nil {
		c.log.Errorf("load tare offset: %v", err)
	}
	c.cell.SetOffset(offset)
	c.tareOffset = offset
	c.log.Infof("tare offset %d loaded", offset)

	if w, err := c.cell.ReadGrams(c.cfg.DoorSamples); err != nil {
		c.log.Errorf("initial weight: %v", err)
	} else {
		c.weight.Rebaseline(w)
		c.log.Infof("initial weight %.1f g", w)
	}

	if err := c.syncBlocking(ctx); err != nil {
		return err
	}

	c.ready = true
	return nil
}

func (c *Controller) syncBlocking(ctx context.Context) error {
	token := c.sync.Mode().RequestToken()
	if err := c.host.SendLine(token); err != nil {
		c.log.Errorf("time sync request: %v", err)
		return nil
	}
	c.sync.Request(c.clock.Millis())
	c.log.Infof("time sync: sent %s, waiting up to %v", token, c.cfg.Sync.Timeout)

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.Sync.Timeout)
	defer cancel()

	for c.sync.Waiting() {
		line, err := c.host.ReadLine(waitCtx)
		if err != nil {
			c.sync.Expire()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, serial.ErrTimeout) {
				c.log.Warn("time sync: no response at startup, continuing unsynchronized")
			} else {
				c.log.Errorf("time sync: %v", err)
			}
			return nil
		}
		if c.hostCommand(line) {
			continue
		}
		c.handleSync(c.sync.Poll(c.clock.Millis(), line, true))
	}
	return nil
}

// Step runs one loop iteration: time sync, input events, alarm, weight,
// then temperature. Failures are logged and never stop the loop.
func (c *Controller) Step() {
	c.syncTick()
	c.inputTick()
	c.alarmTick()
	c.weightTick()
	c.temperatureTick()
}

func (c *Controller) syncTick() {
	now := c.clock.Millis()
	if c.sync.Due(now) {
		token := c.sync.Mode().RequestToken()
		if err := c.host.SendLine(token); err != nil {
			c.log.Errorf("time sync request: %v", err)
		}
		c.sync.Request(now)
		c.log.Debugf("time sync: sent %s", token)
	}

	for {
		line, ok := c.host.TryReadLine()
		if !ok {
			break
		}
		if c.hostCommand(line) {
			continue
		}
		if !c.sync.Waiting() {
			c.log.Debugf("ignoring host line %q", line)
			continue
		}
		c.handleSync(c.sync.Poll(now, line, true))
	}

	if c.sync.Waiting() {
		c.handleSync(c.sync.Poll(now, "", false))
	}
}

// hostCommand handles lines the host may send at any time.
func (c *Controller) hostCommand(line string) bool {
	if strings.TrimSpace(line) != TareCommand {
		return false
	}
	c.log.Info("tare requested by host")
	c.capture.TareEdge()
	return true
}

func (c *Controller) handleSync(r logic.SyncResult) {
	switch r.Outcome {
	case logic.SyncCompleted:
		if !r.Response.HasTime {
			c.log.Info("time sync acknowledged")
			return
		}
		if r.Response.Malformed {
			c.log.Warnf("time sync: malformed response, applying %d", r.Response.Micros)
		}
		c.wall.Set(r.Response.Micros)
		c.lastSyncAt = r.Response.Micros
		c.log.Infof("time synced to %s", time.UnixMicro(r.Response.Micros).UTC().Format(time.RFC3339))
	case logic.SyncRejected:
		c.log.Warn("time sync: unexpected response")
	case logic.SyncTimedOut:
		c.log.Errorf("time sync: no response within %v", c.cfg.Sync.Timeout)
	}
}

func (c *Controller) inputTick() {
	if c.capture.TakeTare() {
		c.tare()
	}
	if c.capture.TakeDoor() {
		c.doorEdge()
	}
}

func (c *Controller) tare() {
	raw, err := c.cell.ReadRaw(c.cfg.TareSamples)
	if err != nil {
		c.log.Errorf("tare: %v", err)
		return
	}

	c.cell.SetOffset(raw)
	c.tareOffset = raw
	c.weight.Rebaseline(0)

	// The host still hears about the new zero when the save fails; only the
	// next boot loses it.
	if err := c.store.PutLong(store.KeyTareOffset, raw); err != nil {
		c.log.Errorf("tare: offset %d applied but not saved: %v", raw, err)
	} else {
		c.log.Infof("tare offset %d saved", raw)
	}
	c.emit(report.TareButton())
}

func (c *Controller) doorEdge() {
	c.sleep(c.cfg.Settle)

	open, err := c.board.DoorOpen()
	if err != nil {
		c.log.Errorf("read door: %v", err)
		return
	}

	switch c.door.Apply(c.clock.Millis(), open) {
	case logic.DoorUnchanged:
		c.log.Debug("door edge without a level change")
		return
	case logic.DoorOpened:
		c.log.Info("door opened")
	case logic.DoorClosed:
		c.log.Info("door closed")
	}

	c.setBuzzer(false)

	w, err := c.cell.ReadGrams(c.cfg.DoorSamples)
	if err != nil {
		c.log.Errorf("door weight: %v", err)
		w = c.weight.Baseline()
	}
	c.weight.Rebaseline(w)
	c.emit(report.DoorChange(open, w))
}

func (c *Controller) alarmTick() {
	if eff := c.door.Tick(c.clock.Millis()); eff.Changed {
		c.setBuzzer(eff.On)
	}
}

func (c *Controller) setBuzzer(on bool) {
	if err := c.board.SetBuzzer(on); err != nil {
		c.log.Errorf("buzzer: %v", err)
	}
}

func (c *Controller) weightTick() {
	w, err := c.cell.ReadGrams(c.cfg.LiveSamples)
	if err != nil {
		if !c.cellFault {
			c.log.Errorf("read weight: %v", err)
			c.cellFault = true
		}
		return
	}
	if c.cellFault {
		c.log.Info("weight readings recovered")
		c.cellFault = false
	}

	if ch := c.weight.Process(c.clock.Millis(), w); ch != nil {
		c.log.Infof("weight change %+.1f g (%.1f -> %.1f)", ch.ChangeGrams, ch.Previous, ch.Current)
		c.emit(report.WeightChange(ch.ChangeGrams))
	}
}

func (c *Controller) temperatureTick() {
	now := c.clock.Millis()
	if !c.temp.Due(now) {
		return
	}

	celsius, err := c.probe.ReadCelsius()
	if err != nil && !errors.Is(err, probe.ErrDisconnected) {
		c.log.Errorf("read temperature: %v", err)
	}
	st := c.temp.Record(now, celsius, err != nil)
	if st.Code == logic.StatusFault {
		c.log.Warn("temperature probe disconnected")
	}

	w, err := c.cell.ReadGrams(c.cfg.ReportSamples)
	if err != nil {
		c.log.Errorf("report weight: %v", err)
		w = c.weight.Baseline()
	}

	c.emit(report.StatusReport(c.door.State().IsOpen, st.LastValue, w/1000, st.Code))
}

func (c *Controller) emit(ev report.Event) {
	if err := c.reporter.Emit(ev); err != nil {
		c.log.Errorf("report: %v", err)
	}
}

// State is a point-in-time view of the loop's state machines.
type State struct {
	Ready       bool
	Door        logic.DoorState
	Alarm       logic.AlarmState
	Baseline    float64
	Candidate   logic.StabilityCandidate
	Temperature logic.TemperatureStatus
	TareOffset  int64
	Sync        logic.SyncState
	SyncMode    logic.SyncMode
	ClockSynced bool
	LastSync    int64 // host time applied by the last sync, microseconds
	Counts      report.Counts
}

// State returns a copy of the current state. It must be called from the
// loop goroutine.
func (c *Controller) State() State {
	return State{
		Ready:       c.ready,
		Door:        c.door.State(),
		Alarm:       c.door.Alarm(),
		Baseline:    c.weight.Baseline(),
		Candidate:   c.weight.Candidate(),
		Temperature: c.temp.Status(),
		TareOffset:  c.tareOffset,
		Sync:        c.sync.State(),
		SyncMode:    c.sync.Mode(),
		ClockSynced: c.wall.Synced(),
		LastSync:    c.lastSyncAt,
		Counts:      c.reporter.Counts(),
	}
}

// String summarizes the state for logs.
func (s State) String() string {
	door := report.DoorClosed
	if s.Door.IsOpen {
		door = report.DoorOpen
	}
	return fmt.Sprintf("door=%s alarm=%s weight=%.1fg temp=%.2fC status=%s sync=%s",
		door, s.Alarm.Phase, s.Baseline, s.Temperature.LastValue, s.Temperature.Code, s.Sync)
}
