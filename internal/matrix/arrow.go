package matrix

import "math"

// Arrow geometry on the 13x8 grid. The center sits between rows 3 and 4
// so the shaft renders symmetrically for up/down angles.
const (
	arrowCenterX = 6.0
	arrowCenterY = 3.5

	arrowShaftLen = 3
	arrowWingSpan = 1.5
)

// DrawArrow clears the buffer and renders a directional arrow for
// angleDeg, measured clockwise from straight up.
//
// The shaft is 3 pixels stepped along (sin, -cos) from the center, the
// head is two wing pixels offset perpendicular to the shaft tip, plus
// the center pixel itself. All coordinates round half away from zero
// before clamping. This coarse vector-to-raster mapping is the device's
// wire-compatible arrow shape; pixel placement must not drift.
func DrawArrow(f *FrameBuffer, angleDeg float64) {
	f.Clear()

	th := angleDeg * math.Pi / 180
	dx, dy := math.Sin(th), -math.Cos(th)

	f.SetPixel(roundi(arrowCenterY), roundi(arrowCenterX))
	for i := 1; i <= arrowShaftLen; i++ {
		f.SetPixel(
			roundi(arrowCenterY+dy*float64(i)),
			roundi(arrowCenterX+dx*float64(i)),
		)
	}

	tipX := arrowCenterX + dx*arrowShaftLen
	tipY := arrowCenterY + dy*arrowShaftLen
	hx, hy := math.Cos(th), math.Sin(th)
	f.SetPixel(roundi(tipY+hy*arrowWingSpan), roundi(tipX+hx*arrowWingSpan))
	f.SetPixel(roundi(tipY-hy*arrowWingSpan), roundi(tipX-hx*arrowWingSpan))
}

func roundi(v float64) int {
	return int(math.Round(v))
}
