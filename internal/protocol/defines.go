package protocol

// Backscatter frame constants

const (
	HEADER_LEN      = 10 // Preamble + sync word + length + sequence
	PREAMBLE_LENGTH = 4  // Preamble length in bytes
	SYNC_LENGTH     = 4  // Sync word length in bytes

	// Header offsets
	PREAMBLE_OFFSET = 0
	SYNC_OFFSET     = 4
	LENGTH_OFFSET   = 8 // Bytes following the length byte (seq + coded payload)
	SEQ_OFFSET      = 9 // Sequence number slot

	PREAMBLE_BYTE = 0xAA

	// Largest value the length byte can carry
	MAX_BODY_LENGTH = 255
)

// ReceiverID identifies the receiver board a tag is built for
type ReceiverID uint16

const (
	RECEIVER_CC1352 ReceiverID = 1352
	RECEIVER_CC2500 ReceiverID = 2500
)

// Receiver sync words
var (
	SYNC_CC1352 = [SYNC_LENGTH]byte{0x93, 0x0B, 0x51, 0xDE}
	SYNC_CC2500 = [SYNC_LENGTH]byte{0xD3, 0x91, 0xD3, 0x91}
)
