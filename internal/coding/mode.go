package coding

import (
	"fmt"
	"strings"
)

// Mode selects how the payload is put on air. It is fixed for the life of a
// process.
type Mode uint8

const (
	Raw Mode = iota // Payload as is
	FEC             // Walsh spreading
	ECC             // Bit repetition with majority decoding
)

func (m Mode) String() string {
	switch m {
	case Raw:
		return "raw"
	case FEC:
		return "fec"
	case ECC:
		return "ecc"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// IsValid reports whether m is one of the known modes
func (m Mode) IsValid() bool {
	return m <= ECC
}

// ParseMode converts a configured mode name
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "raw", "none", "0":
		return Raw, nil
	case "fec", "walsh":
		return FEC, nil
	case "ecc", "repetition":
		return ECC, nil
	}
	return Raw, fmt.Errorf("unknown coding mode %q (want raw, fec or ecc)", value)
}

// Params carries the integrator supplied code parameters
type Params struct {
	WalshOrder int // FEC: bits per symbol, each symbol spread to 2^order chips
	Repetition int // ECC: copies of every payload bit
}

// Code parameter limits
const (
	MIN_WALSH_ORDER = 1
	MAX_WALSH_ORDER = 4
	MIN_REPETITION  = 3
	MAX_REPETITION  = 9
)

// DefaultParams returns rate 1/2 Walsh spreading and triple repetition
func DefaultParams() Params {
	return Params{
		WalshOrder: 2,
		Repetition: 3,
	}
}

// Validate checks the parameters are usable
func (p Params) Validate() error {
	if p.WalshOrder < MIN_WALSH_ORDER || p.WalshOrder > MAX_WALSH_ORDER {
		return fmt.Errorf("walsh order %d out of range [%d, %d]", p.WalshOrder, MIN_WALSH_ORDER, MAX_WALSH_ORDER)
	}
	if p.Repetition < MIN_REPETITION || p.Repetition > MAX_REPETITION {
		return fmt.Errorf("repetition %d out of range [%d, %d]", p.Repetition, MIN_REPETITION, MAX_REPETITION)
	}
	if p.Repetition%2 == 0 {
		return fmt.Errorf("repetition %d must be odd for majority decoding", p.Repetition)
	}
	return nil
}
