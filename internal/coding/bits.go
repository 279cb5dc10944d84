package coding

// bitWriter appends bits MSB first. The target must be zeroed.
type bitWriter struct {
	buf []byte
	pos int
}

func (w *bitWriter) writeBit(bit bool) {
	if bit {
		w.buf[w.pos>>3] |= 0x80 >> uint(w.pos&7)
	}
	w.pos++
}

// bitReader reads bits MSB first; reads past the end return zero
type bitReader struct {
	buf []byte
	pos int
}

func (r *bitReader) readBit() bool {
	idx := r.pos >> 3
	if idx >= len(r.buf) {
		r.pos++
		return false
	}
	bit := r.buf[idx]&(0x80>>uint(r.pos&7)) != 0
	r.pos++
	return bit
}

func (r *bitReader) readBits(n int) uint16 {
	var v uint16
	for i := 0; i < n; i++ {
		v <<= 1
		if r.readBit() {
			v |= 1
		}
	}
	return v
}

// CountBitErrors returns the number of differing bits between a and b over
// the length of the shorter slice
func CountBitErrors(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	errors := 0
	for i := 0; i < n; i++ {
		errors += popcount8(a[i] ^ b[i])
	}
	return errors
}

func popcount8(v byte) int {
	count := 0
	for v != 0 {
		v &= v - 1
		count++
	}
	return count
}
