package coding

import "fmt"

// Encoder applies the selected coding mode to payloads. It is built once at
// start; for FEC that includes the Walsh table.
type Encoder struct {
	mode       Mode
	params     Params
	walsh      *WalshTable
	repetition int
}

// NewEncoder creates an encoder for mode with the given parameters
func NewEncoder(mode Mode, params Params) (*Encoder, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid coding mode %d", uint8(mode))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	e := &Encoder{
		mode:       mode,
		params:     params,
		repetition: params.Repetition,
	}

	if mode == FEC {
		table, err := NewWalshTable(params.WalshOrder)
		if err != nil {
			return nil, err
		}
		e.walsh = table
	}

	return e, nil
}

// Mode returns the coding mode
func (e *Encoder) Mode() Mode { return e.mode }

// Params returns the code parameters
func (e *Encoder) Params() Params { return e.params }

// EncodedLen returns the on-air length of an n byte payload
func (e *Encoder) EncodedLen(n int) int {
	switch e.mode {
	case FEC:
		return e.walsh.EncodedLen(n)
	case ECC:
		return RepetitionLen(n, e.repetition)
	default:
		return n
	}
}

// Encode writes the coded payload into dst and returns the number of bytes
// written. dst must hold EncodedLen(len(src)) bytes.
func (e *Encoder) Encode(dst, src []byte) int {
	switch e.mode {
	case FEC:
		return e.walsh.Spread(dst, src)
	case ECC:
		return RepeatBits(dst, src, e.repetition)
	default:
		return copy(dst, src)
	}
}

// Decode recovers n payload bytes from coded data
func (e *Encoder) Decode(src []byte, n int) []byte {
	switch e.mode {
	case FEC:
		return e.walsh.Despread(src, n)
	case ECC:
		return MajorityDecode(src, n, e.repetition)
	default:
		out := make([]byte, n)
		copy(out, src)
		return out
	}
}
