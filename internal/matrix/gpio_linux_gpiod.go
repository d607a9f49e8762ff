//go:build linux && (arm || arm64)

package matrix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// OpenGPIO returns a Driver that shifts frames into an external
// shift-register chain over three BCM GPIO lines (serial data, shift
// clock, output latch) using the Linux GPIO character device.
//
// Bits go out MSW-first so the last register in the chain holds word 0.
func OpenGPIO(dataPin, clockPin, latchPin int) (Driver, error) {
	if dataPin <= 0 || clockPin <= 0 || latchPin <= 0 {
		return nil, fmt.Errorf("matrix: invalid gpio pins %d/%d/%d", dataPin, clockPin, latchPin)
	}

	chip, data, err := requestOutput(dataPin)
	if err != nil {
		return nil, err
	}
	d := &gpiodDriver{chip: chip, data: data}

	clock, err := requestOutputOnChip(chip, clockPin)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.clock = clock

	latch, err := requestOutputOnChip(chip, latchPin)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.latch = latch

	return d, nil
}

// requestOutput scans the available gpiochips for a line named "GPIO<n>"
// (the common Pi naming) and requests it as an output.
func requestOutput(pin int) (*gpiocdev.Chip, *gpiocdev.Line, error) {
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("skypointer-matrix"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return chip, line, nil
	}

	return nil, nil, fmt.Errorf("matrix: gpio line %q not found (or busy)", lineName)
}

// requestOutputOnChip requests a second line on an already-open chip.
func requestOutputOnChip(chip *gpiocdev.Chip, pin int) (*gpiocdev.Line, error) {
	lineName := fmt.Sprintf("GPIO%d", pin)
	offset, err := chip.FindLine(lineName)
	if err != nil {
		return nil, fmt.Errorf("matrix: gpio line %q not found: %w", lineName, err)
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("skypointer-matrix"))
	if err != nil {
		return nil, fmt.Errorf("matrix: gpio line %q busy: %w", lineName, err)
	}
	return line, nil
}

type gpiodDriver struct {
	chip  *gpiocdev.Chip
	data  *gpiocdev.Line
	clock *gpiocdev.Line
	latch *gpiocdev.Line
}

func (d *gpiodDriver) Flush(words [NumWords]uint32) error {
	if d == nil || d.data == nil || d.clock == nil || d.latch == nil {
		return fmt.Errorf("matrix: gpio driver not initialized")
	}
	if err := d.latch.SetValue(0); err != nil {
		return fmt.Errorf("matrix: latch low failed: %w", err)
	}
	for w := NumWords - 1; w >= 0; w-- {
		for bit := 31; bit >= 0; bit-- {
			v := 0
			if words[w]>>uint(bit)&1 == 1 {
				v = 1
			}
			if err := d.data.SetValue(v); err != nil {
				return fmt.Errorf("matrix: data write failed: %w", err)
			}
			if err := d.clock.SetValue(1); err != nil {
				return fmt.Errorf("matrix: clock write failed: %w", err)
			}
			if err := d.clock.SetValue(0); err != nil {
				return fmt.Errorf("matrix: clock write failed: %w", err)
			}
		}
	}
	if err := d.latch.SetValue(1); err != nil {
		return fmt.Errorf("matrix: latch high failed: %w", err)
	}
	return nil
}

func (d *gpiodDriver) Close() error {
	if d == nil {
		return nil
	}
	// Graceful shutdown: blank the display before releasing lines.
	if d.data != nil && d.clock != nil && d.latch != nil {
		_ = d.Flush([NumWords]uint32{})
	}
	var first error
	for _, l := range []*gpiocdev.Line{d.data, d.clock, d.latch} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	d.data, d.clock, d.latch = nil, nil, nil
	if d.chip != nil {
		_ = d.chip.Close()
		d.chip = nil
	}
	return first
}
