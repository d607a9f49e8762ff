package controller

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"skypointer/internal/guidance"
	"skypointer/internal/matrix"
	"skypointer/internal/sensors/lsm6dsox"
)

type fakeDriver struct {
	flushes [][matrix.NumWords]uint32
	closed  bool
}

func (d *fakeDriver) Flush(words [matrix.NumWords]uint32) error {
	d.flushes = append(d.flushes, words)
	return nil
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

func (d *fakeDriver) last(t *testing.T) [matrix.NumWords]uint32 {
	t.Helper()
	if len(d.flushes) == 0 {
		t.Fatalf("no frames flushed")
	}
	return d.flushes[len(d.flushes)-1]
}

type fakeSensor struct {
	samples []lsm6dsox.Sample
	errs    []error
	reads   int
}

func (s *fakeSensor) Read() (lsm6dsox.Sample, error) {
	s.reads++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return lsm6dsox.Sample{}, err
		}
	}
	if len(s.samples) == 0 {
		return lsm6dsox.Sample{}, nil
	}
	sm := s.samples[0]
	if len(s.samples) > 1 {
		s.samples = s.samples[1:]
	}
	return sm, nil
}

type recordedSink struct {
	accel      [][3]float64
	gyro       [][3]float64
	elevations []float64
}

func (r *recordedSink) Accel(ax, ay, az float64) { r.accel = append(r.accel, [3]float64{ax, ay, az}) }
func (r *recordedSink) Gyro(gx, gy, gz float64)  { r.gyro = append(r.gyro, [3]float64{gx, gy, gz}) }
func (r *recordedSink) Elevation(deg float64)    { r.elevations = append(r.elevations, deg) }

func newTestController(drv matrix.Driver, sensor Sensor, sink TelemetrySink) *Controller {
	return New(Config{}, drv, sensor, sink)
}

func TestElevation_Derivation(t *testing.T) {
	cases := []struct {
		az   float64
		want float64
	}{
		{-1, 0},
		{0, 90},
		{1, 180},
		{-5, 0},  // clamped
		{5, 180}, // clamped
	}
	for _, tc := range cases {
		if got := elevationDeg(tc.az); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("elevationDeg(%v)=%v want %v", tc.az, got, tc.want)
		}
	}
}

func TestTick_EmitsTelemetryPerSuccessfulRead(t *testing.T) {
	drv := &fakeDriver{}
	sensor := &fakeSensor{samples: []lsm6dsox.Sample{{Ax: 0.1, Ay: 0.2, Az: -1, Gx: 1, Gy: 2, Gz: 3}}}
	sink := &recordedSink{}
	c := newTestController(drv, sensor, sink)

	c.tick(time.Unix(100, 0))

	if len(sink.accel) != 1 || sink.accel[0] != [3]float64{0.1, 0.2, -1} {
		t.Fatalf("accel=%v want one 0.1/0.2/-1 sample", sink.accel)
	}
	if len(sink.gyro) != 1 || sink.gyro[0] != [3]float64{1, 2, 3} {
		t.Fatalf("gyro=%v want one 1/2/3 sample", sink.gyro)
	}
	if len(sink.elevations) != 1 || math.Abs(sink.elevations[0]) > 1e-9 {
		t.Fatalf("elevations=%v want one ~0", sink.elevations)
	}

	snap := c.Snapshot()
	if !snap.ElevationValid || snap.Ticks != 1 {
		t.Fatalf("snapshot=%+v want valid elevation, 1 tick", snap)
	}
}

func TestTick_ReadMissSkipsTelemetryAndRecovers(t *testing.T) {
	drv := &fakeDriver{}
	sensor := &fakeSensor{
		errs:    []error{errFake, nil},
		samples: []lsm6dsox.Sample{{Az: 0}},
	}
	sink := &recordedSink{}
	c := newTestController(drv, sensor, sink)

	c.tick(time.Unix(100, 0))
	if len(sink.elevations) != 0 {
		t.Fatalf("telemetry emitted on failed read: %v", sink.elevations)
	}
	if c.Snapshot().LastError == "" {
		t.Fatalf("expected sensor error in snapshot")
	}

	c.tick(time.Unix(100, 1))
	if len(sink.elevations) != 1 {
		t.Fatalf("elevations=%v want one after recovery", sink.elevations)
	}
	if c.Snapshot().LastError != "" {
		t.Fatalf("error not cleared after recovery: %q", c.Snapshot().LastError)
	}
}

func TestOverlay_TopAloneNeverRenders(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	if err := c.Apply(SetRowsTop{Masks: [4]uint16{0x1FFF, 0, 0, 0}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	c.tick(time.Unix(100, 0))
	if len(drv.flushes) != 0 {
		t.Fatalf("flushes=%d want 0 after top half only", len(drv.flushes))
	}
}

func TestOverlay_BottomRendersUnionWhilePassive(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	top := [4]uint16{1 << 12, 0, 0, 1}
	bottom := [4]uint16{0x0F0, 0, 1 << 12, 0}
	_ = c.Apply(SetRowsTop{Masks: top})
	_ = c.Apply(SetRowsBottom{Masks: bottom})
	c.tick(time.Unix(100, 0))

	if len(drv.flushes) != 1 {
		t.Fatalf("flushes=%d want 1", len(drv.flushes))
	}
	var want matrix.FrameBuffer
	for r := 0; r < 4; r++ {
		want.SetRow(r, top[r])
		want.SetRow(r+4, bottom[r])
	}
	if got := drv.last(t); got != want.Words() {
		t.Fatalf("frame=%#x want %#x", got, want.Words())
	}
}

func TestOverlay_StoredButNotRenderedWhileGuiding(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	_ = c.Apply(StartGuidance{AngleDeg: 0, InView: false})
	c.tick(time.Unix(100, 0))
	guidanceFlushes := len(drv.flushes)

	_ = c.Apply(SetRowsTop{Masks: [4]uint16{0x1FFF, 0x1FFF, 0x1FFF, 0x1FFF}})
	_ = c.Apply(SetRowsBottom{Masks: [4]uint16{0x1FFF, 0x1FFF, 0x1FFF, 0x1FFF}})
	c.tick(time.Unix(100, 0).Add(10 * time.Millisecond))
	if len(drv.flushes) != guidanceFlushes {
		t.Fatalf("overlay rendered while guiding: %d new flushes", len(drv.flushes)-guidanceFlushes)
	}

	// Back in passive mode the stored masks render on the next bottom write.
	_ = c.Apply(CancelGuidance{})
	c.tick(time.Unix(100, 0).Add(20 * time.Millisecond))
	_ = c.Apply(SetRowsBottom{Masks: [4]uint16{0x1FFF, 0x1FFF, 0x1FFF, 0x1FFF}})
	c.tick(time.Unix(100, 0).Add(30 * time.Millisecond))

	var want matrix.FrameBuffer
	want.Fill()
	if got := drv.last(t); got != want.Words() {
		t.Fatalf("frame=%#x want full overlay %#x", got, want.Words())
	}
}

func TestGuidance_InViewAcquisitionBlanksMatrix(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	t0 := time.Unix(100, 0)
	_ = c.Apply(StartGuidance{InView: true})
	c.tick(t0)

	var full matrix.FrameBuffer
	full.Fill()
	if got := drv.last(t); got != full.Words() {
		t.Fatalf("initial frame=%#x want full matrix", got)
	}
	if c.Snapshot().Mode != guidance.ActiveGuidance.String() {
		t.Fatalf("mode=%q want guidance", c.Snapshot().Mode)
	}

	// Six in-view transitions complete the acquisition sequence.
	for i := 1; i <= 6; i++ {
		c.tick(t0.Add(time.Duration(i) * 150 * time.Millisecond))
	}

	if got := drv.last(t); got != ([matrix.NumWords]uint32{}) {
		t.Fatalf("frame=%#x want blank after acquisition", got)
	}
	snap := c.Snapshot()
	if snap.Mode != guidance.PassiveDisplay.String() {
		t.Fatalf("mode=%q want passive after acquisition", snap.Mode)
	}
	if snap.BlinkTransitions != 0 || snap.TargetInView {
		t.Fatalf("snapshot=%+v want cleared guidance state", snap)
	}
}

func TestGuidance_ArrowBlinkAlternatesFrames(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	t0 := time.Unix(100, 0)
	_ = c.Apply(StartGuidance{AngleDeg: 90, DistanceDeg: 0, InView: false})
	c.tick(t0)

	var arrow matrix.FrameBuffer
	matrix.DrawArrow(&arrow, 90)
	if got := drv.last(t); got != arrow.Words() {
		t.Fatalf("frame=%#x want arrow", got)
	}

	// Distance 0 blinks at the 100ms floor.
	c.tick(t0.Add(100 * time.Millisecond))
	if got := drv.last(t); got != ([matrix.NumWords]uint32{}) {
		t.Fatalf("frame=%#x want blank on off-phase", got)
	}
	c.tick(t0.Add(200 * time.Millisecond))
	if got := drv.last(t); got != arrow.Words() {
		t.Fatalf("frame=%#x want arrow on on-phase", got)
	}
}

func TestCommands_ApplyBetweenTicksInOrder(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	// Both halves queued before the tick: the drain applies them in one
	// atomic slot and the overlay renders exactly once.
	_ = c.Apply(SetRowsTop{Masks: [4]uint16{1, 2, 3, 4}})
	_ = c.Apply(SetRowsBottom{Masks: [4]uint16{5, 6, 7, 8}})
	_ = c.Apply(SetRowsBottom{Masks: [4]uint16{5, 6, 7, 8}})
	c.tick(time.Unix(100, 0))

	// Second bottom write produced an identical frame; dedup keeps it to
	// a single physical flush.
	if len(drv.flushes) != 1 {
		t.Fatalf("flushes=%d want 1", len(drv.flushes))
	}
}

func TestCancelGuidance_BlanksImmediately(t *testing.T) {
	drv := &fakeDriver{}
	c := newTestController(drv, &fakeSensor{}, nil)

	t0 := time.Unix(100, 0)
	_ = c.Apply(StartGuidance{AngleDeg: 45, DistanceDeg: 90, InView: false})
	c.tick(t0)
	_ = c.Apply(CancelGuidance{})
	c.tick(t0.Add(50 * time.Millisecond))

	if got := drv.last(t); got != ([matrix.NumWords]uint32{}) {
		t.Fatalf("frame=%#x want blank after cancel", got)
	}
	if c.Snapshot().Mode != guidance.PassiveDisplay.String() {
		t.Fatalf("mode=%q want passive", c.Snapshot().Mode)
	}
}

func TestWaitSensorReady_RetriesWithBackoff(t *testing.T) {
	var slept []time.Duration
	oldSleep := sleep
	sleep = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { sleep = oldSleep })

	c := newTestController(&fakeDriver{}, &fakeSensor{}, nil)

	fails := 3
	err := c.waitSensorReady(context.Background(), func() error {
		if fails > 0 {
			fails--
			return errFake
		}
		return nil
	})
	if err != nil {
		t.Fatalf("waitSensorReady: %v", err)
	}
	if len(slept) != 3 {
		t.Fatalf("backoff sleeps=%d want 3", len(slept))
	}
	for _, d := range slept {
		if d != time.Second {
			t.Fatalf("backoff=%v want 1s", d)
		}
	}
}

func TestWaitSensorReady_ContextCancel(t *testing.T) {
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })

	c := newTestController(&fakeDriver{}, &fakeSensor{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.waitSensorReady(ctx, func() error { return errFake })
	if err == nil {
		t.Fatalf("expected context error")
	}
}

func TestApply_FullQueueDropsCommand(t *testing.T) {
	c := newTestController(&fakeDriver{}, &fakeSensor{}, nil)
	var err error
	for i := 0; i < cap(c.cmdCh)+1; i++ {
		err = c.Apply(CancelGuidance{})
	}
	if err == nil {
		t.Fatalf("expected queue-full error")
	}
}

var errFake = errors.New("fake failure")
