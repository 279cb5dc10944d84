package packet

import (
	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/protocol"
)

// Len returns the packet length for a payload of payloadSize bytes
func Len(payloadSize int, enc *coding.Encoder) int {
	return protocol.HEADER_LEN + enc.EncodedLen(payloadSize)
}

// BodyLen returns the header length byte value: sequence byte plus coded
// payload
func BodyLen(payloadSize int, enc *coding.Encoder) int {
	return 1 + enc.EncodedLen(payloadSize)
}

// Assemble builds a packet into dst: the header template with seq in its
// slot, followed by the payload passed through enc. dst is reused when it has
// enough capacity and the returned slice is exactly the packet. payload is
// only read during the call.
func Assemble(dst []byte, seq uint8, tmpl protocol.HeaderTemplate, payload []byte, enc *coding.Encoder) []byte {
	n := Len(len(payload), enc)
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	copy(dst, tmpl[:])
	dst[protocol.SEQ_OFFSET] = seq
	enc.Encode(dst[protocol.HEADER_LEN:], payload)

	return dst
}

// Sequence extracts the sequence byte of an assembled packet
func Sequence(pkt []byte) uint8 {
	return pkt[protocol.SEQ_OFFSET]
}
