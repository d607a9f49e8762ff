//go:build !linux || (!arm && !arm64)

package matrix

import "fmt"

// Stub implementation for non-Linux and/or non-ARM platforms.
func OpenGPIO(dataPin, clockPin, latchPin int) (Driver, error) {
	return nil, fmt.Errorf("matrix: gpio unsupported on this platform")
}
