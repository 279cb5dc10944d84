package packet

import (
	"errors"
	"fmt"
)

// ErrUnalignedLength is returned by Pack for byte buffers whose length is not
// a multiple of 4. Nothing is padded or truncated.
var ErrUnalignedLength = errors.New("byte buffer length is not a multiple of 4")

// WordCount returns the number of 32-bit words needed for n bytes
func WordCount(n int) int {
	return (n + 3) / 4
}

// PaddedLen rounds n up to a whole number of words
func PaddedLen(n int) int {
	return WordCount(n) * 4
}

// Pack converts b into big-endian 32-bit words for the transmit FIFO. Byte 0
// of every group of four lands in the most significant bits. dst is reused
// when it has enough capacity.
func Pack(dst []uint32, b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return dst, fmt.Errorf("pack %d bytes: %w", len(b), ErrUnalignedLength)
	}

	count := len(b) / 4
	if cap(dst) < count {
		dst = make([]uint32, count)
	}
	dst = dst[:count]

	for i := 0; i < count; i++ {
		dst[i] = uint32(b[4*i+3]) |
			uint32(b[4*i+2])<<8 |
			uint32(b[4*i+1])<<16 |
			uint32(b[4*i])<<24
	}
	return dst, nil
}

// Unpack is the inverse of Pack
func Unpack(dst []byte, words []uint32) []byte {
	n := len(words) * 4
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	for i, w := range words {
		dst[4*i] = byte(w >> 24)
		dst[4*i+1] = byte(w >> 16)
		dst[4*i+2] = byte(w >> 8)
		dst[4*i+3] = byte(w)
	}
	return dst
}
