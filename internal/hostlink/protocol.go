package hostlink

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"skypointer/internal/controller"
)

// Line protocol of the host bridge. One command or telemetry event per
// line, space-separated fields, names matching the bridge procedures.
//
// Inbound:
//   set_led_top m0 m1 m2 m3
//   set_led_bottom m4 m5 m6 m7
//   set_find_star angle distance in_view
//   cancel_find_star
//
// Outbound:
//   record_sensor_movement ax ay az
//   record_sensor_gyro gx gy gz
//   record_elevation deg

const rowMaskBits = 0x1FFF

// ParseCommand turns one inbound line into a controller command.
func ParseCommand(line string) (controller.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("hostlink: empty command")
	}

	switch fields[0] {
	case "set_led_top":
		masks, err := parseRowMasks(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("hostlink: set_led_top: %w", err)
		}
		return controller.SetRowsTop{Masks: masks}, nil

	case "set_led_bottom":
		masks, err := parseRowMasks(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("hostlink: set_led_bottom: %w", err)
		}
		return controller.SetRowsBottom{Masks: masks}, nil

	case "set_find_star":
		if len(fields) != 4 {
			return nil, fmt.Errorf("hostlink: set_find_star: want 3 args, got %d", len(fields)-1)
		}
		angle, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("hostlink: set_find_star: bad angle %q", fields[1])
		}
		distance, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("hostlink: set_find_star: bad distance %q", fields[2])
		}
		// The bridge sends in_view as a float flag (1.0 / 0.0).
		inView, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("hostlink: set_find_star: bad in_view %q", fields[3])
		}
		return controller.StartGuidance{
			AngleDeg:    angle,
			DistanceDeg: distance,
			InView:      inView != 0,
		}, nil

	case "cancel_find_star":
		if len(fields) != 1 {
			return nil, fmt.Errorf("hostlink: cancel_find_star: unexpected args")
		}
		return controller.CancelGuidance{}, nil
	}

	return nil, fmt.Errorf("hostlink: unknown command %q", fields[0])
}

// parseRowMasks decodes 4 decimal row masks. Bits beyond the 13-bit row
// width are dropped, mirroring the display's clamp-not-reject posture.
func parseRowMasks(args []string) ([4]uint16, error) {
	var masks [4]uint16
	if len(args) != 4 {
		return masks, fmt.Errorf("want 4 row masks, got %d", len(args))
	}
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 16)
		if err != nil {
			return masks, fmt.Errorf("bad row mask %q", a)
		}
		masks[i] = uint16(v) & rowMaskBits
	}
	return masks, nil
}

// Sink formats telemetry as protocol lines onto a writer. The writer is
// shared with nothing else on the outbound side, but calls may come from
// the control loop while the read loop owns the port, so writes are
// serialized here.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) Accel(ax, ay, az float64) {
	s.writeLine(fmt.Sprintf("record_sensor_movement %.4f %.4f %.4f", ax, ay, az))
}

func (s *Sink) Gyro(gx, gy, gz float64) {
	s.writeLine(fmt.Sprintf("record_sensor_gyro %.4f %.4f %.4f", gx, gy, gz))
}

func (s *Sink) Elevation(deg float64) {
	s.writeLine(fmt.Sprintf("record_elevation %.1f", deg))
}

func (s *Sink) writeLine(line string) {
	if s == nil || s.w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Telemetry is best-effort; a failed write drops the event.
	_, _ = io.WriteString(s.w, line+"\n")
}
