package coding

import "fmt"

// WalshTable holds 2^order orthogonal codes of 2^order chips each, built with
// the Sylvester construction. Chip 0 of a code is its most significant bit.
type WalshTable struct {
	order int
	chips int
	codes []uint16
}

// NewWalshTable builds the code table. It runs once at start.
func NewWalshTable(order int) (*WalshTable, error) {
	if order < MIN_WALSH_ORDER || order > MAX_WALSH_ORDER {
		return nil, fmt.Errorf("walsh order %d out of range [%d, %d]", order, MIN_WALSH_ORDER, MAX_WALSH_ORDER)
	}

	// Start from the 1x1 matrix [0] and double it order times:
	// [W W; W !W]
	matrix := [][]bool{{false}}
	for i := 0; i < order; i++ {
		size := len(matrix)
		next := make([][]bool, size*2)
		for r := range next {
			next[r] = make([]bool, size*2)
		}
		for r := 0; r < size; r++ {
			for c := 0; c < size; c++ {
				v := matrix[r][c]
				next[r][c] = v
				next[r][c+size] = v
				next[r+size][c] = v
				next[r+size][c+size] = !v
			}
		}
		matrix = next
	}

	chips := 1 << uint(order)
	codes := make([]uint16, chips)
	for r, row := range matrix {
		var code uint16
		for _, chip := range row {
			code <<= 1
			if chip {
				code |= 1
			}
		}
		codes[r] = code
	}

	return &WalshTable{
		order: order,
		chips: chips,
		codes: codes,
	}, nil
}

// Order returns the number of data bits per symbol
func (w *WalshTable) Order() int { return w.order }

// Chips returns the code length
func (w *WalshTable) Chips() int { return w.chips }

// Code returns the chip pattern for a symbol value
func (w *WalshTable) Code(symbol int) uint16 {
	return w.codes[symbol]
}

// Chip returns chip c of the code for symbol
func (w *WalshTable) Chip(symbol, c int) bool {
	return w.codes[symbol]&(1<<uint(w.chips-1-c)) != 0
}

// Nearest returns the symbol whose code correlates best with the received
// chips. With chips mapped to +1/-1 the correlation is chips - 2*distance,
// so the smallest Hamming distance wins; ties go to the lower symbol.
func (w *WalshTable) Nearest(received uint16) int {
	best := 0
	bestDistance := w.chips + 1
	for symbol, code := range w.codes {
		d := popcount16(code ^ received)
		if d < bestDistance {
			best = symbol
			bestDistance = d
		}
	}
	return best
}

// EncodedLen returns the spread length in bytes of n payload bytes
func (w *WalshTable) EncodedLen(n int) int {
	symbols := (n*8 + w.order - 1) / w.order
	return (symbols*w.chips + 7) / 8
}

// Spread writes the spread form of src into dst, which must hold
// EncodedLen(len(src)) bytes. It returns the number of bytes written.
func (w *WalshTable) Spread(dst, src []byte) int {
	n := w.EncodedLen(len(src))
	out := dst[:n]
	clear(out)

	r := bitReader{buf: src}
	wr := bitWriter{buf: out}
	symbols := (len(src)*8 + w.order - 1) / w.order
	for s := 0; s < symbols; s++ {
		symbol := int(r.readBits(w.order))
		for c := 0; c < w.chips; c++ {
			wr.writeBit(w.Chip(symbol, c))
		}
	}
	return n
}

// Despread recovers n payload bytes from spread data
func (w *WalshTable) Despread(src []byte, n int) []byte {
	out := make([]byte, n)
	r := bitReader{buf: src}
	wr := bitWriter{buf: out}
	bits := n * 8
	for written := 0; written < bits; {
		symbol := w.Nearest(r.readBits(w.chips))
		for b := w.order - 1; b >= 0 && written < bits; b-- {
			wr.writeBit(symbol&(1<<uint(b)) != 0)
			written++
		}
	}
	return out
}

func popcount16(v uint16) int {
	return popcount8(byte(v>>8)) + popcount8(byte(v))
}
