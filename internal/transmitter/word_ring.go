package transmitter

import "fmt"

// WordRing is a bounded circular buffer of 32-bit words. Not safe for
// concurrent use; the serializer guards it with its own mutex.
type WordRing struct {
	buffer []uint32
	head   int
	tail   int
	size   int
	name   string
}

// NewWordRing creates a ring holding up to capacity words
func NewWordRing(capacity int, name string) *WordRing {
	return &WordRing{
		buffer: make([]uint32, capacity),
		name:   name,
	}
}

// AddData appends words. Returns false, adding nothing, if they don't fit.
func (rb *WordRing) AddData(words []uint32) bool {
	if !rb.HasSpace(len(words)) {
		return false
	}

	for _, w := range words {
		rb.buffer[rb.head] = w
		rb.head = (rb.head + 1) % len(rb.buffer)
		rb.size++
	}
	return true
}

// Push appends one word, dropping the oldest when full
func (rb *WordRing) Push(w uint32) {
	if len(rb.buffer) == 0 {
		return
	}
	if rb.size == len(rb.buffer) {
		rb.tail = (rb.tail + 1) % len(rb.buffer)
		rb.size--
	}
	rb.AddData([]uint32{w})
}

// Peek copies the oldest len(words) words without removing them
func (rb *WordRing) Peek(words []uint32) bool {
	if rb.size < len(words) {
		return false
	}

	idx := rb.tail
	for i := range words {
		words[i] = rb.buffer[idx]
		idx = (idx + 1) % len(rb.buffer)
	}
	return true
}

// Snapshot returns a copy of every buffered word, oldest first
func (rb *WordRing) Snapshot() []uint32 {
	out := make([]uint32, rb.size)
	rb.Peek(out)
	return out
}

func (rb *WordRing) FreeSpace() int { return len(rb.buffer) - rb.size }

func (rb *WordRing) DataSize() int { return rb.size }

func (rb *WordRing) HasSpace(n int) bool { return rb.FreeSpace() >= n }

func (rb *WordRing) IsEmpty() bool { return rb.size == 0 }

func (rb *WordRing) String() string {
	return fmt.Sprintf("WordRing[%s]: size=%d, capacity=%d, head=%d, tail=%d",
		rb.name, rb.size, len(rb.buffer), rb.head, rb.tail)
}
