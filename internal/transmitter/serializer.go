package transmitter

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// SerializerConfig describes the simulated serializer block
type SerializerConfig struct {
	Pins         []uint8 // One or two antenna pins
	BitRate      int     // Bits per second shifted onto the antenna lines
	FIFODepth    int     // Words the transmit queue holds
	HistoryWords int     // Shifted words kept for inspection, 0 keeps none
}

// Serializer is a host-side model of the hardware bit-serializer. Words are
// queued in a bounded FIFO and shifted out one bit at a time at BitRate by a
// drain goroutine, so Send blocks once the FIFO is full.
type Serializer struct {
	pins     []uint8
	bitRate  int
	wordTime time.Duration
	fifo     chan uint32
	logger   *log.Logger

	mu      sync.Mutex
	history *WordRing
	lines   []uint64 // Bits driven per antenna line

	queued  atomic.Uint64
	shifted atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSerializer loads the serializer with its pin assignment and starts
// draining
func NewSerializer(cfg SerializerConfig, logger *log.Logger) (*Serializer, error) {
	if err := ValidatePins(cfg.Pins); err != nil {
		return nil, err
	}
	if cfg.BitRate <= 0 {
		cfg.BitRate = DEFAULT_BIT_RATE
	}
	if cfg.FIFODepth <= 0 {
		cfg.FIFODepth = DEFAULT_FIFO_DEPTH
	}

	s := &Serializer{
		pins:     append([]uint8(nil), cfg.Pins...),
		bitRate:  cfg.BitRate,
		wordTime: WordTime(cfg.BitRate),
		fifo:     make(chan uint32, cfg.FIFODepth),
		logger:   logger,
		history:  NewWordRing(cfg.HistoryWords, "shifted"),
		lines:    make([]uint64, len(cfg.Pins)),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.drain()

	s.logf("Serializer started: pins %v, %s, FIFO %d words",
		s.pins, humanize.SI(float64(s.bitRate), "bit/s"), cfg.FIFODepth)
	return s, nil
}

// WordTime returns how long one 32-bit word takes to shift out
func WordTime(bitRate int) time.Duration {
	return time.Duration(WORD_BITS) * time.Second / time.Duration(bitRate)
}

// Send queues words, blocking while the FIFO is full. The words are copied
// into the FIFO so the caller may reuse the slice once Send returns.
//
// ctx is only honoured until the first word is queued. From then on the
// whole buffer is queued so a cancelled caller never leaves a partial packet
// in the FIFO.
func (s *Serializer) Send(ctx context.Context, words []uint32) error {
	for i, w := range words {
		select {
		case <-s.done:
			return ErrClosed
		default:
		}

		if i == 0 {
			select {
			case s.fifo <- w:
			case <-s.done:
				return ErrClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			select {
			case s.fifo <- w:
			case <-s.done:
				return ErrClosed
			}
		}
		s.queued.Add(1)
	}
	return nil
}

func (s *Serializer) drain() {
	defer s.wg.Done()

	for {
		select {
		case w := <-s.fifo:
			s.shift(w)
		case <-s.done:
			return
		}
	}
}

// shift holds the word on the antenna lines for one word time
func (s *Serializer) shift(w uint32) {
	time.Sleep(s.wordTime)

	s.mu.Lock()
	for i := range s.lines {
		s.lines[i] += WORD_BITS
	}
	s.history.Push(w)
	s.mu.Unlock()

	s.shifted.Add(1)
}

// Flush waits until every queued word has been shifted out. Queued words
// always form whole packets.
func (s *Serializer) Flush(ctx context.Context) error {
	for s.shifted.Load() < s.queued.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		case <-time.After(s.wordTime):
		}
	}
	return nil
}

// Shifted returns a copy of the most recent shifted words, oldest first
func (s *Serializer) Shifted() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Snapshot()
}

// LineBits returns the bits driven on each antenna line
func (s *Serializer) LineBits() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.lines...)
}

// Pins returns the antenna pin assignment
func (s *Serializer) Pins() []uint8 {
	return append([]uint8(nil), s.pins...)
}

// Stats returns words accepted and words shifted so far
func (s *Serializer) Stats() (queued, shifted uint64) {
	return s.queued.Load(), s.shifted.Load()
}

// Close stops the drain goroutine; queued words are dropped
func (s *Serializer) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		queued, shifted := s.Stats()
		s.logf("Serializer stopped: %s words queued, %s shifted",
			humanize.Comma(int64(queued)), humanize.Comma(int64(shifted)))
	})
	return nil
}

func (s *Serializer) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
