package payload

// Reference regenerates the sample stream a tag sends so received payloads
// can be compared against it. Not safe for concurrent use.
type Reference struct {
	stream    sampleStream
	randomize bool
	data      []byte
}

// NewReference returns a reference for the default seed
func NewReference(randomize bool) *Reference {
	return NewReferenceWithSeed(DEFAULT_SEED, randomize)
}

// NewReferenceWithSeed returns a reference for a custom seed
func NewReferenceWithSeed(seed uint32, randomize bool) *Reference {
	return &Reference{
		stream:    newSampleStream(seed),
		randomize: randomize,
	}
}

// Samples returns n bytes of the sample stream starting at offset
func (r *Reference) Samples(offset, n int) []byte {
	out := make([]byte, n)
	if !r.randomize {
		fillPattern(out, offset)
		return out
	}

	if need := offset + n; need > len(r.data) {
		grow := make([]byte, need-len(r.data))
		r.stream.fill(grow)
		r.data = append(r.data, grow...)
	}
	copy(out, r.data[offset:offset+n])
	return out
}
