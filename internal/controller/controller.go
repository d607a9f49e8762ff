package controller

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"skypointer/internal/guidance"
	"skypointer/internal/matrix"
	"skypointer/internal/sensors/lsm6dsox"
)

var sleep = time.Sleep

// Sensor is the minimal surface the controller needs from the IMU.
type Sensor interface {
	Read() (lsm6dsox.Sample, error)
}

// TelemetrySink receives per-tick sensor telemetry. Calls happen on the
// control thread; implementations must not block for long.
type TelemetrySink interface {
	Accel(ax, ay, az float64)
	Gyro(gx, gy, gz float64)
	Elevation(deg float64)
}

// MultiSink fans telemetry out to several sinks.
func MultiSink(sinks ...TelemetrySink) TelemetrySink {
	return multiSink(sinks)
}

type multiSink []TelemetrySink

func (m multiSink) Accel(ax, ay, az float64) {
	for _, s := range m {
		s.Accel(ax, ay, az)
	}
}

func (m multiSink) Gyro(gx, gy, gz float64) {
	for _, s := range m {
		s.Gyro(gx, gy, gz)
	}
}

func (m multiSink) Elevation(deg float64) {
	for _, s := range m {
		s.Elevation(deg)
	}
}

type Config struct {
	// Tick is the control loop period.
	Tick time.Duration
	// ReadyBackoff is the startup sensor-ready retry delay.
	ReadyBackoff time.Duration

	Guidance guidance.Config
}

type Snapshot struct {
	Mode             string  `json:"mode"`
	BlinkOn          bool    `json:"blink_on"`
	BlinkTransitions int     `json:"blink_transitions"`
	TargetAngleDeg   float64 `json:"target_angle_deg"`
	TargetDistDeg    float64 `json:"target_distance_deg"`
	TargetInView     bool    `json:"target_in_view"`

	ElevationDeg   float64 `json:"elevation_deg"`
	ElevationValid bool    `json:"elevation_valid"`

	Ticks     uint64    `json:"ticks"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"last_update_utc,omitempty"`
}

// Controller owns the frame buffer, the overlay masks, and the guidance
// machine, and drives them on a fixed tick. All hardware state lives in
// this aggregate; nothing here is a package global.
type Controller struct {
	cfg Config

	drv    matrix.Driver
	sensor Sensor
	sink   TelemetrySink

	fb       matrix.FrameBuffer
	machine  *guidance.Machine
	rowMasks [matrix.Rows]uint16

	lastFlushed [matrix.NumWords]uint32
	flushedOnce bool

	cmdCh chan Command

	mu   sync.RWMutex
	snap Snapshot

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, drv matrix.Driver, sensor Sensor, sink TelemetrySink) *Controller {
	if cfg.Tick <= 0 {
		cfg.Tick = 50 * time.Millisecond
	}
	if cfg.ReadyBackoff <= 0 {
		cfg.ReadyBackoff = 1 * time.Second
	}
	c := &Controller{
		cfg:     cfg,
		drv:     drv,
		sensor:  sensor,
		sink:    sink,
		machine: guidance.NewMachine(cfg.Guidance),
		cmdCh:   make(chan Command, 32),
		stopCh:  make(chan struct{}),
	}
	c.snap.Mode = guidance.PassiveDisplay.String()
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.drv != nil {
			_ = c.drv.Close()
		}
	})
}

// Apply queues a host command for the next tick. It never blocks; a full
// queue drops the command with an error so a dead loop cannot wedge the
// host link.
func (c *Controller) Apply(cmd Command) error {
	if c == nil {
		return fmt.Errorf("controller: is nil")
	}
	select {
	case c.cmdCh <- cmd:
		return nil
	default:
		return fmt.Errorf("controller: command queue full")
	}
}

// Start blocks until the sensor produces its first sample, then runs the
// tick loop in a goroutine. The startup wait is the only blocking call
// in the controller; nothing useful can run before the sensor exists.
func (c *Controller) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("controller: is nil")
	}
	if c.drv == nil || c.sensor == nil {
		return fmt.Errorf("controller: driver and sensor are required")
	}
	if err := c.waitSensorReady(ctx, func() error {
		_, err := c.sensor.Read()
		return err
	}); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// waitSensorReady retries the ready predicate with a fixed backoff until
// it succeeds or the context ends.
func (c *Controller) waitSensorReady(ctx context.Context, ready func() error) error {
	for {
		if err := ready(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("controller: stopped before sensor ready")
		default:
		}
		sleep(c.cfg.ReadyBackoff)
	}
}

func (c *Controller) run(ctx context.Context) {
	t := time.NewTicker(c.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.stopCh:
			return
		case <-t.C:
			c.tick(time.Now())
		}
	}
}

// tick runs one control-loop pass: sensor poll, guidance advance,
// command drain.
func (c *Controller) tick(now time.Time) {
	c.pollSensor(now)
	c.advanceGuidance(now)
	c.drainCommands(now)

	c.mu.Lock()
	c.snap.Ticks++
	c.snap.UpdatedAt = now.UTC()
	c.mu.Unlock()
}

func (c *Controller) pollSensor(now time.Time) {
	s, err := c.sensor.Read()
	if err != nil {
		// Transient miss: no telemetry this tick, loop continues.
		c.mu.Lock()
		c.snap.LastError = fmt.Sprintf("sensor: %v", err)
		c.mu.Unlock()
		return
	}

	elev := elevationDeg(s.Az)
	if c.sink != nil {
		c.sink.Accel(s.Ax, s.Ay, s.Az)
		c.sink.Gyro(s.Gx, s.Gy, s.Gz)
		c.sink.Elevation(elev)
	}

	c.mu.Lock()
	c.snap.ElevationDeg = elev
	c.snap.ElevationValid = true
	c.snap.LastError = ""
	c.mu.Unlock()
}

func (c *Controller) advanceGuidance(now time.Time) {
	res := c.machine.Tick(now)
	switch res.Render {
	case guidance.RenderNone:
		return
	case guidance.RenderBlank:
		c.fb.Clear()
	case guidance.RenderFull:
		c.fb.Fill()
	case guidance.RenderArrow:
		matrix.DrawArrow(&c.fb, res.AngleDeg)
	}
	c.flush()
	c.syncGuidanceSnapshot()
}

func (c *Controller) drainCommands(now time.Time) {
	for {
		select {
		case cmd := <-c.cmdCh:
			c.applyCommand(cmd, now)
		default:
			return
		}
	}
}

func (c *Controller) applyCommand(cmd Command, now time.Time) {
	switch v := cmd.(type) {
	case SetRowsTop:
		copy(c.rowMasks[0:4], v.Masks[:])
	case SetRowsBottom:
		copy(c.rowMasks[4:8], v.Masks[:])
		if c.machine.Mode() == guidance.PassiveDisplay {
			c.renderOverlay()
		}
	case StartGuidance:
		c.machine.Enter(guidance.Target{
			AngleDeg:    v.AngleDeg,
			DistanceDeg: v.DistanceDeg,
			InView:      v.InView,
		}, now)
		// Show the first on-frame right away rather than waiting a tick.
		c.renderGuidanceFrame(v)
	case CancelGuidance:
		c.machine.Cancel()
		c.fb.Clear()
		c.flush()
	}
	c.syncGuidanceSnapshot()
}

func (c *Controller) renderGuidanceFrame(v StartGuidance) {
	if v.InView {
		c.fb.Fill()
	} else {
		matrix.DrawArrow(&c.fb, v.AngleDeg)
	}
	c.flush()
}

func (c *Controller) renderOverlay() {
	c.fb.Clear()
	for r, mask := range c.rowMasks {
		c.fb.SetRow(r, mask)
	}
	c.flush()
}

// flush pushes the frame to the driver, skipping frames identical to the
// last one flushed.
func (c *Controller) flush() {
	w := c.fb.Words()
	if c.flushedOnce && w == c.lastFlushed {
		return
	}
	if err := c.drv.Flush(w); err != nil {
		c.mu.Lock()
		c.snap.LastError = fmt.Sprintf("matrix: %v", err)
		c.mu.Unlock()
		return
	}
	c.lastFlushed = w
	c.flushedOnce = true
}

func (c *Controller) syncGuidanceSnapshot() {
	target := c.machine.Target()
	blink := c.machine.Blink()
	c.mu.Lock()
	c.snap.Mode = c.machine.Mode().String()
	c.snap.BlinkOn = blink.On
	c.snap.BlinkTransitions = blink.Transitions
	c.snap.TargetAngleDeg = target.AngleDeg
	c.snap.TargetDistDeg = target.DistanceDeg
	c.snap.TargetInView = target.InView
	c.mu.Unlock()
}

// elevationDeg derives the pointing elevation from the accel Z axis:
// -1g reads 0 degrees (pointing straight up), +1g reads 180.
func elevationDeg(az float64) float64 {
	v := -az
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	return math.Acos(v) * 180 / math.Pi
}
