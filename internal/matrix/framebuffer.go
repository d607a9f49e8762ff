package matrix

// Physical LED matrix geometry.
const (
	Rows = 8
	Cols = 13

	numBits  = Rows * Cols
	NumWords = (numBits + 31) / 32
)

// FrameBuffer holds the packed bit state of the 8x13 matrix.
//
// Bit index is row*Cols+col; word = index/32, bit = index%32. The buffer
// is cleared and rewritten as a whole on every render pass, so it is
// never partially stale between a Clear and a Flush.
type FrameBuffer struct {
	words [NumWords]uint32
}

// Clear zeroes the whole buffer.
func (f *FrameBuffer) Clear() {
	f.words = [NumWords]uint32{}
}

// Fill lights every pixel. Bits above the last used position stay zero.
func (f *FrameBuffer) Fill() {
	for i := range f.words {
		f.words[i] = 0xFFFFFFFF
	}
	if rem := numBits % 32; rem != 0 {
		f.words[NumWords-1] &= (1 << rem) - 1
	}
}

// SetPixel lights (row, col). Out-of-range coordinates are clamped into
// the matrix, never rejected; arrow geometry near the edges snaps to the
// border instead of disappearing.
func (f *FrameBuffer) SetPixel(row, col int) {
	row = clampInt(row, 0, Rows-1)
	col = clampInt(col, 0, Cols-1)
	idx := row*Cols + col
	f.words[idx/32] |= 1 << (idx % 32)
}

// SetRow ORs a 13-bit host row mask into the buffer. Masks are MSB-first
// within the row: bit (Cols-1-c) drives column c, matching the host's
// (val<<1)|bit packing. Mask bits above the matrix width are ignored.
func (f *FrameBuffer) SetRow(row int, mask uint16) {
	for col := 0; col < Cols; col++ {
		if mask>>(Cols-1-col)&1 == 1 {
			f.SetPixel(row, col)
		}
	}
}

// Words returns the packed buffer in flush order.
func (f *FrameBuffer) Words() [NumWords]uint32 {
	return f.words
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
