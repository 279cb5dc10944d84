// Package transmitter hands packed word buffers to the bit-serializer that
// drives the antenna lines.
//
// Send blocks until every word has been accepted into the transmit queue.
// Callers reuse their word buffer as soon as Send returns, so an
// implementation must copy the words before returning.
package transmitter

import (
	"context"
	"errors"
	"fmt"
)

// Transmitter is the serializer capability the scheduler depends on
type Transmitter interface {
	Send(ctx context.Context, words []uint32) error
	Close() error
}

var (
	ErrClosed  = errors.New("transmitter closed")
	ErrNotOpen = errors.New("transmitter not open")
)

const (
	MAX_ANTENNAS = 2
	MAX_PIN      = 29 // Highest user GPIO on the tag MCU

	DEFAULT_BIT_RATE   = 100000
	DEFAULT_FIFO_DEPTH = 8 // Joined TX FIFO depth in words
	WORD_BITS          = 32
)

// ValidatePins checks the antenna pin assignment: one or two distinct pins
func ValidatePins(pins []uint8) error {
	if len(pins) == 0 || len(pins) > MAX_ANTENNAS {
		return fmt.Errorf("need 1 to %d antenna pins, got %d", MAX_ANTENNAS, len(pins))
	}
	for _, p := range pins {
		if p > MAX_PIN {
			return fmt.Errorf("antenna pin %d out of range [0, %d]", p, MAX_PIN)
		}
	}
	if len(pins) == 2 && pins[0] == pins[1] {
		return fmt.Errorf("antenna pins must differ, both are %d", pins[0])
	}
	return nil
}
