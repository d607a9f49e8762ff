package guidance

import "time"

// Mode is the controller display mode. Exactly one mode is active.
type Mode int

const (
	// PassiveDisplay shows host-supplied row overlays.
	PassiveDisplay Mode = iota
	// ActiveGuidance blinks a directional cue toward the current target.
	ActiveGuidance
)

func (m Mode) String() string {
	switch m {
	case PassiveDisplay:
		return "passive"
	case ActiveGuidance:
		return "guidance"
	default:
		return "unknown"
	}
}

// Target is the host-supplied pointing target. Angle follows the host
// convention (degrees, clockwise from up); Distance is the angular
// distance to the target in [0,180].
type Target struct {
	AngleDeg    float64
	DistanceDeg float64
	InView      bool
}

// BlinkState tracks the visual feedback cadence. Only meaningful while
// the machine is in ActiveGuidance; Transitions counts toggles in the
// in-view sub-state and stays zero while the target is out of view.
type BlinkState struct {
	LastToggleAt time.Time
	On           bool
	Transitions  int
}

type Config struct {
	// InViewPeriod is the full-matrix blink period once the target is in
	// view.
	InViewPeriod time.Duration
	// MinPeriod/MaxPeriod bound the arrow blink: the period interpolates
	// linearly from MinPeriod at distance 0 to MaxPeriod at distance 180.
	MinPeriod time.Duration
	MaxPeriod time.Duration
	// AcquireTransitions is the number of in-view toggles before the
	// machine auto-cancels (the acquisition confirmation).
	AcquireTransitions int
}

// Machine holds the mode, target, and blink sub-state. It is driven from
// the single control thread; Tick takes an explicit clock so the timing
// logic is testable without real delay.
type Machine struct {
	cfg    Config
	mode   Mode
	target Target
	blink  BlinkState
}

func NewMachine(cfg Config) *Machine {
	if cfg.InViewPeriod <= 0 {
		cfg.InViewPeriod = 150 * time.Millisecond
	}
	if cfg.MinPeriod <= 0 {
		cfg.MinPeriod = 100 * time.Millisecond
	}
	if cfg.MaxPeriod <= cfg.MinPeriod {
		cfg.MaxPeriod = 1000 * time.Millisecond
	}
	if cfg.AcquireTransitions <= 0 {
		cfg.AcquireTransitions = 6
	}
	return &Machine{cfg: cfg}
}

func (m *Machine) Mode() Mode        { return m.mode }
func (m *Machine) Target() Target    { return m.target }
func (m *Machine) Blink() BlinkState { return m.blink }

// Enter installs target and switches to ActiveGuidance. Entering while
// already guiding replaces the target wholesale; the blink state always
// restarts so no transition count leaks across sessions.
func (m *Machine) Enter(target Target, now time.Time) {
	m.mode = ActiveGuidance
	m.target = target
	m.blink = BlinkState{LastToggleAt: now, On: true}
}

// Cancel discards the target and returns to PassiveDisplay. The caller
// blanks the display.
func (m *Machine) Cancel() {
	m.mode = PassiveDisplay
	m.target = Target{}
	m.blink = BlinkState{}
}

// Render says what the display should show after a Tick.
type Render int

const (
	// RenderNone: passive mode, guidance owns nothing on the display.
	RenderNone Render = iota
	RenderBlank
	RenderFull
	RenderArrow
)

type TickResult struct {
	Render   Render
	AngleDeg float64
	// Acquired is set on the tick whose toggle completed the acquisition
	// sequence; the machine has already cancelled itself.
	Acquired bool
}

// Tick advances the blink logic to now.
func (m *Machine) Tick(now time.Time) TickResult {
	if m.mode != ActiveGuidance {
		return TickResult{Render: RenderNone}
	}

	period := m.cfg.InViewPeriod
	if !m.target.InView {
		period = m.arrowPeriod()
	}

	if now.Sub(m.blink.LastToggleAt) >= period {
		m.blink.On = !m.blink.On
		m.blink.LastToggleAt = now
		if m.target.InView {
			m.blink.Transitions++
			if m.blink.Transitions >= m.cfg.AcquireTransitions {
				m.Cancel()
				return TickResult{Render: RenderBlank, Acquired: true}
			}
		}
	}

	switch {
	case m.target.InView && m.blink.On:
		return TickResult{Render: RenderFull}
	case m.target.InView:
		return TickResult{Render: RenderBlank}
	case m.blink.On:
		return TickResult{Render: RenderArrow, AngleDeg: m.target.AngleDeg}
	default:
		return TickResult{Render: RenderBlank}
	}
}

// arrowPeriod interpolates the out-of-view blink period: close targets
// blink fast, far targets slow.
func (m *Machine) arrowPeriod() time.Duration {
	d := m.target.DistanceDeg
	if d < 0 {
		d = 0
	}
	if d > 180 {
		d = 180
	}
	span := float64(m.cfg.MaxPeriod - m.cfg.MinPeriod)
	return m.cfg.MinPeriod + time.Duration(d/180*span)
}
