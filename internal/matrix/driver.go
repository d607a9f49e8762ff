package matrix

// Driver is the minimal interface the controller needs from a physical
// matrix backend. Flush receives the packed frame in word order.
//
// Close should be best-effort and leave the display blank.
type Driver interface {
	Flush(words [NumWords]uint32) error
	Close() error
}

// Discard returns a Driver that drops every frame. Used when the matrix
// backend is disabled (bench setups without the display attached).
func Discard() Driver {
	return discardDriver{}
}

type discardDriver struct{}

func (discardDriver) Flush(words [NumWords]uint32) error { return nil }
func (discardDriver) Close() error                       { return nil }
