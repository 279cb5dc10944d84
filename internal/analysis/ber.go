package analysis

import (
	"errors"
	"fmt"

	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/payload"
)

// ErrNoFrames is returned when a log holds no usable frame
var ErrNoFrames = errors.New("no frames received")

// Params describes the run that produced a log
type Params struct {
	Mode        coding.Mode
	Coding      coding.Params
	PayloadSize int
	Randomize   bool
	Seed        uint32 // payload.DEFAULT_SEED when zero
}

// Result summarises a run
type Result struct {
	Mode        coding.Mode
	Packets     int // Frames in the log, repeats included
	Unique      int // Distinct sequence numbers received
	Transmitted int // Packets the tag sent up to the last one received
	Lost        int // Sequence numbers missing between first and last
	First       int
	Last        int
	Bits        int64
	BitErrors   int64
	BER         float64
	ETX         float64
	MeanRSSI    float64
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %d frames (%d unique, %d lost) of %d sent, BER %.3e, ETX %.3f, RSSI %.1f",
		r.Mode, r.Packets, r.Unique, r.Lost, r.Transmitted, r.BER, r.ETX, r.MeanRSSI)
}

// ComputeBER scores frames against the sample stream the tag sent. Every
// received payload is decoded with the run's code. A sequence number seen
// more than once counts with its best reception; one never seen counts every
// payload bit as wrong. ETX is packets sent per frame received.
func ComputeBER(frames []Frame, p Params) (Result, error) {
	if len(frames) == 0 {
		return Result{}, ErrNoFrames
	}
	if p.PayloadSize <= 0 {
		return Result{}, fmt.Errorf("payload size must be positive, got %d", p.PayloadSize)
	}

	enc, err := coding.NewEncoder(p.Mode, p.Coding)
	if err != nil {
		return Result{}, fmt.Errorf("coding: %w", err)
	}

	seed := p.Seed
	if seed == 0 {
		seed = payload.DEFAULT_SEED
	}
	ref := payload.NewReferenceWithSeed(seed, p.Randomize)

	Unwrap(frames)

	first, last := frames[0].Unwrapped, frames[0].Unwrapped
	best := make(map[int]int, len(frames))
	rssi := 0
	for _, f := range frames {
		if f.Unwrapped < first {
			first = f.Unwrapped
		}
		if f.Unwrapped > last {
			last = f.Unwrapped
		}

		got := enc.Decode(f.Payload, p.PayloadSize)
		errs := coding.CountBitErrors(got, expected(ref, f.Unwrapped, p.PayloadSize))
		if prev, ok := best[f.Unwrapped]; !ok || errs < prev {
			best[f.Unwrapped] = errs
		}
		rssi += f.RSSI
	}

	payloadBits := int64(p.PayloadSize) * 8
	span := last - first + 1

	res := Result{
		Mode:        p.Mode,
		Packets:     len(frames),
		Unique:      len(best),
		// Highest sequence seen, so a late frame at the end of the log does not shrink the count
		Transmitted: last + 1,
		Lost:        span - len(best),
		First:       first,
		Last:        last,
		Bits:        int64(span) * payloadBits,
		MeanRSSI:    float64(rssi) / float64(len(frames)),
	}

	for _, errs := range best {
		res.BitErrors += int64(errs)
	}
	res.BitErrors += int64(res.Lost) * payloadBits

	res.BER = float64(res.BitErrors) / float64(res.Bits)
	res.ETX = float64(res.Transmitted) / float64(res.Packets)

	return res, nil
}

// expected rebuilds the payload the tag sent with sequence seq
func expected(ref *payload.Reference, seq, size int) []byte {
	out := make([]byte, size)
	if size < payload.PSEUDO_SEQ_LENGTH {
		copy(out, ref.Samples(seq*size, size))
		return out
	}

	n := size - payload.PSEUDO_SEQ_LENGTH
	offset := seq * n
	out[0] = byte(uint16(offset) >> 8)
	out[1] = byte(uint16(offset))
	copy(out[payload.PSEUDO_SEQ_LENGTH:], ref.Samples(offset, n))
	return out
}
