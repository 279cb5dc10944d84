package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/packet"
	"github.com/dbehnke/backscatter/internal/transmitter"
)

// ErrTimingViolation means the cycle period would not cover the time the
// serializer needs to shift out one packet
var ErrTimingViolation = errors.New("cycle period does not exceed packet transmit time")

// Per-mode cycle periods of the reference tag
const (
	RAW_PERIOD = 10 * time.Millisecond
	FEC_PERIOD = 20 * time.Millisecond
	ECC_PERIOD = 30 * time.Millisecond
)

// DefaultPeriod returns the reference cycle period for mode
func DefaultPeriod(mode coding.Mode) time.Duration {
	switch mode {
	case coding.FEC:
		return FEC_PERIOD
	case coding.ECC:
		return ECC_PERIOD
	default:
		return RAW_PERIOD
	}
}

// TransmitTime is the time the serializer needs to shift out a packet of
// packetLen bytes. Whole words are shifted, padding included.
func TransmitTime(packetLen, bitRate int) time.Duration {
	words := packet.WordCount(packetLen)
	return time.Duration(words) * transmitter.WordTime(bitRate)
}

// CheckTiming verifies period > TransmitTime(packetLen, bitRate)
func CheckTiming(period time.Duration, packetLen, bitRate int) error {
	if bitRate <= 0 {
		return fmt.Errorf("bit rate must be positive, got %d", bitRate)
	}
	need := TransmitTime(packetLen, bitRate)
	if period <= need {
		return fmt.Errorf("%w: period %v, %d byte packet needs %v at %d bit/s",
			ErrTimingViolation, period, packetLen, need, bitRate)
	}
	return nil
}
