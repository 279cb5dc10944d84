package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// HeaderTemplate is the fixed part of every frame. The sequence slot is
// overwritten per packet, everything else is constant for a run.
type HeaderTemplate [HEADER_LEN]byte

// BuildHeaderTemplate builds the header for the given receiver board.
// bodyLen is the value of the length byte: sequence byte plus coded payload.
func BuildHeaderTemplate(receiver ReceiverID, bodyLen int) HeaderTemplate {
	var h HeaderTemplate

	for i := 0; i < PREAMBLE_LENGTH; i++ {
		h[PREAMBLE_OFFSET+i] = PREAMBLE_BYTE
	}

	sync := SYNC_CC1352
	if receiver == RECEIVER_CC2500 {
		sync = SYNC_CC2500
	}
	copy(h[SYNC_OFFSET:SYNC_OFFSET+SYNC_LENGTH], sync[:])

	h[LENGTH_OFFSET] = byte(bodyLen)
	h[SEQ_OFFSET] = 0

	return h
}

// Receiver returns the receiver board the template was built for
func (h HeaderTemplate) Receiver() ReceiverID {
	if [SYNC_LENGTH]byte(h[SYNC_OFFSET:SYNC_OFFSET+SYNC_LENGTH]) == SYNC_CC2500 {
		return RECEIVER_CC2500
	}
	return RECEIVER_CC1352
}

// BodyLength returns the length byte
func (h HeaderTemplate) BodyLength() int {
	return int(h[LENGTH_OFFSET])
}

// String returns a hex dump of the template
func (h HeaderTemplate) String() string {
	parts := make([]string, len(h))
	for i, b := range h {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// ParseReceiverID converts a configured receiver identity
func ParseReceiverID(value string) (ReceiverID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid receiver id %q: %w", value, err)
	}

	id := ReceiverID(v)
	if !id.IsValid() {
		return 0, fmt.Errorf("unsupported receiver id %d (want %d or %d)", id, RECEIVER_CC1352, RECEIVER_CC2500)
	}
	return id, nil
}

// IsValid reports whether the id is one of the supported receiver boards
func (r ReceiverID) IsValid() bool {
	return r == RECEIVER_CC1352 || r == RECEIVER_CC2500
}

func (r ReceiverID) String() string {
	switch r {
	case RECEIVER_CC1352:
		return "CC1352"
	case RECEIVER_CC2500:
		return "CC2500"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(r))
	}
}
