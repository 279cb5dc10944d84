// Package payload produces the test data the tag transmits. The randomised
// stream is reproducible so a receiver can compute bit error rates against
// it.
package payload

import "math"

// Generator fills a payload buffer. length is fixed for a run.
type Generator interface {
	Generate(buf []byte, randomize bool)
}

const (
	DEFAULT_SEED = 0xabcd

	// PSEUDO_SEQ_LENGTH leading bytes carry the byte offset of the samples
	// that follow
	PSEUDO_SEQ_LENGTH = 2

	lcgA = 1664525
	lcgC = 1013904223

	sampleScale  = 0x7FF
	sampleOffset = 0x1FFF
	sampleMax    = 0x3FFFFF
)

// SampleGenerator emits compressible 16-bit Gaussian samples, big-endian,
// behind a 2-byte pseudo sequence
type SampleGenerator struct {
	stream  sampleStream
	emitted uint16
}

// NewSampleGenerator returns a generator seeded with DEFAULT_SEED
func NewSampleGenerator() *SampleGenerator {
	return NewSampleGeneratorWithSeed(DEFAULT_SEED)
}

// NewSampleGeneratorWithSeed returns a generator with a custom seed
func NewSampleGeneratorWithSeed(seed uint32) *SampleGenerator {
	return &SampleGenerator{stream: newSampleStream(seed)}
}

// Generate fills buf. Buffers shorter than the pseudo sequence are filled
// with samples only.
func (g *SampleGenerator) Generate(buf []byte, randomize bool) {
	region := buf
	if len(buf) >= PSEUDO_SEQ_LENGTH {
		buf[0] = byte(g.emitted >> 8)
		buf[1] = byte(g.emitted)
		region = buf[PSEUDO_SEQ_LENGTH:]
	}

	if randomize {
		g.stream.fill(region)
	} else {
		fillPattern(region, int(g.emitted))
	}
	g.emitted += uint16(len(region))
}

// Offset returns the pseudo sequence the next buffer will carry
func (g *SampleGenerator) Offset() uint16 {
	return g.emitted
}

// fillPattern writes the fixed ramp used when randomisation is off
func fillPattern(region []byte, offset int) {
	for i := range region {
		region[i] = byte(offset + i)
	}
}

// sampleStream turns the LCG into a byte stream of 16-bit samples
type sampleStream struct {
	seed    uint32
	pending int // low byte of the last sample, -1 when none
}

func newSampleStream(seed uint32) sampleStream {
	return sampleStream{seed: seed, pending: -1}
}

func (s *sampleStream) next() uint32 {
	s.seed = s.seed*lcgA + lcgC
	return s.seed
}

// sample draws one Box-Muller value, clamped and truncated
func (s *sampleStream) sample() uint16 {
	var u1, u2 float64
	for u1 == 0 || u2 == 0 {
		u1 = float64(s.next()) / 0xFFFFFFFF
		u2 = float64(s.next()) / 0xFFFFFFFF
	}

	v := sampleScale * math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
	v = math.Max(0, math.Min(sampleMax, v+sampleOffset))
	return uint16(uint32(math.Trunc(v)))
}

func (s *sampleStream) fill(region []byte) {
	for i := range region {
		if s.pending >= 0 {
			region[i] = byte(s.pending)
			s.pending = -1
			continue
		}
		v := s.sample()
		region[i] = byte(v >> 8)
		s.pending = int(v & 0xFF)
	}
}
