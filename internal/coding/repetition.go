package coding

// RepetitionLen returns the encoded length of n payload bytes
func RepetitionLen(n, factor int) int {
	return n * factor
}

// RepeatBits emits every bit of src factor times, MSB first. dst must hold
// RepetitionLen(len(src), factor) bytes.
func RepeatBits(dst, src []byte, factor int) int {
	n := RepetitionLen(len(src), factor)
	out := dst[:n]
	clear(out)

	r := bitReader{buf: src}
	w := bitWriter{buf: out}
	for i := 0; i < len(src)*8; i++ {
		bit := r.readBit()
		for k := 0; k < factor; k++ {
			w.writeBit(bit)
		}
	}
	return n
}

// MajorityDecode recovers n bytes from repeated bits by majority vote over
// every group of factor bits
func MajorityDecode(src []byte, n, factor int) []byte {
	out := make([]byte, n)
	r := bitReader{buf: src}
	w := bitWriter{buf: out}
	for i := 0; i < n*8; i++ {
		ones := 0
		for k := 0; k < factor; k++ {
			if r.readBit() {
				ones++
			}
		}
		w.writeBit(ones > factor/2)
	}
	return out
}
