package controller

// Command is the closed set of host commands. Commands queue on a
// single-producer channel and are drained at a fixed point in the tick,
// so they take effect between ticks, never mid-render.
type Command interface {
	isCommand()
}

// SetRowsTop stores the overlay masks for rows 0-3. It never triggers a
// render on its own; the host always follows with SetRowsBottom.
type SetRowsTop struct {
	Masks [4]uint16
}

// SetRowsBottom stores the overlay masks for rows 4-7 and, while the
// controller is in passive display, renders all 8 stored rows.
type SetRowsBottom struct {
	Masks [4]uint16
}

// StartGuidance enters active guidance with the given target. Issued
// while already guiding it replaces the target.
type StartGuidance struct {
	AngleDeg    float64
	DistanceDeg float64
	InView      bool
}

// CancelGuidance returns to passive display and blanks the matrix.
type CancelGuidance struct{}

func (SetRowsTop) isCommand()     {}
func (SetRowsBottom) isCommand()  {}
func (StartGuidance) isCommand()  {}
func (CancelGuidance) isCommand() {}
