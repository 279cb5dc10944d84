// Package scheduler runs the tag's transmit loop: generate a payload,
// assemble and pack the packet, hand it to the serializer, advance the
// sequence number and wait for the next cycle.
//
// The scheduler owns the sequence counter, the payload, packet and word
// buffers. They are reused every cycle. Reuse is safe because Send does not
// return before the serializer has taken the words.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/packet"
	"github.com/dbehnke/backscatter/internal/payload"
	"github.com/dbehnke/backscatter/internal/protocol"
	"github.com/dbehnke/backscatter/internal/transmitter"
)

// State is the scheduler state machine position
type State int

const (
	StateInit State = iota
	StateLoop
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateLoop:
		return "Loop"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config is the frozen tag configuration
type Config struct {
	Receiver    protocol.ReceiverID
	PayloadSize int
	Randomize   bool
	Mode        coding.Mode
	Params      coding.Params
	BitRate     int           // Serializer bit rate, used for the timing check
	Period      time.Duration // Cycle period, DefaultPeriod(Mode) when zero
}

// Transmission describes one handed-off packet
type Transmission struct {
	Seq       uint8
	Mode      coding.Mode
	PacketLen int
	Words     int
	SentAt    time.Time
	Blocked   time.Duration
}

// Observer is told about every packet after the serializer accepted it
type Observer interface {
	OnTransmit(tx Transmission)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(tx Transmission)

func (f ObserverFunc) OnTransmit(tx Transmission) { f(tx) }

// Option customises a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger, none by default
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithDebug logs every packet
func WithDebug(debug bool) Option {
	return func(s *Scheduler) { s.debug = debug }
}

// WithObserver adds a transmission observer
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// WithMetrics records loop metrics
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler is the single producer of packets
type Scheduler struct {
	cfg      Config
	tx       transmitter.Transmitter
	gen      payload.Generator
	encoder  *coding.Encoder
	template protocol.HeaderTemplate

	payload   []byte
	packet    []byte // Word aligned, tail bytes stay zero
	words     []uint32
	packetLen int
	seq       uint8
	sent      uint64
	state     State
	period    time.Duration

	logger    *log.Logger
	debug     bool
	observers []Observer
	metrics   *Metrics
	now       func() time.Time
}

// New performs the Init state: builds the encoder (and Walsh table for FEC),
// the header template and the buffers, and checks the timing invariant. The
// transmitter must already be loaded with its pin assignment.
func New(cfg Config, tx transmitter.Transmitter, gen payload.Generator, opts ...Option) (*Scheduler, error) {
	if tx == nil {
		return nil, fmt.Errorf("transmitter is required")
	}
	if gen == nil {
		return nil, fmt.Errorf("payload generator is required")
	}
	if cfg.PayloadSize <= 0 {
		return nil, fmt.Errorf("payload size must be positive, got %d", cfg.PayloadSize)
	}
	if !cfg.Receiver.IsValid() {
		return nil, fmt.Errorf("unsupported receiver %d", uint16(cfg.Receiver))
	}

	enc, err := coding.NewEncoder(cfg.Mode, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("coding: %w", err)
	}

	bodyLen := packet.BodyLen(cfg.PayloadSize, enc)
	if bodyLen > protocol.MAX_BODY_LENGTH {
		return nil, fmt.Errorf("%s payload of %d bytes codes to %d bytes, length byte holds at most %d",
			cfg.Mode, cfg.PayloadSize, bodyLen, protocol.MAX_BODY_LENGTH)
	}

	period := cfg.Period
	if period == 0 {
		period = DefaultPeriod(cfg.Mode)
	}

	packetLen := packet.Len(cfg.PayloadSize, enc)
	if err := CheckTiming(period, packetLen, cfg.BitRate); err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:       cfg,
		tx:        tx,
		gen:       gen,
		encoder:   enc,
		template:  protocol.BuildHeaderTemplate(cfg.Receiver, bodyLen),
		payload:   make([]byte, cfg.PayloadSize),
		packet:    make([]byte, packet.PaddedLen(packetLen)),
		words:     make([]uint32, packet.WordCount(packetLen)),
		packetLen: packetLen,
		state:     StateInit,
		period:    period,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logf("Tag ready: receiver %s, %s coding, %d byte payload, %d byte packet (%d words), period %v",
		cfg.Receiver, cfg.Mode, cfg.PayloadSize, packetLen, len(s.words), period)
	s.logf("Header template: %s", s.template)

	return s, nil
}

// Step runs one loop iteration and returns once the serializer accepted the
// packet. It does not wait for the next cycle.
func (s *Scheduler) Step(ctx context.Context) error {
	s.state = StateLoop

	s.gen.Generate(s.payload, s.cfg.Randomize)

	packet.Assemble(s.packet, s.seq, s.template, s.payload, s.encoder)

	words, err := packet.Pack(s.words, s.packet)
	if err != nil {
		return err
	}
	s.words = words

	start := s.now()
	if err := s.tx.Send(ctx, s.words); err != nil {
		return fmt.Errorf("send seq %d: %w", s.seq, err)
	}
	sentAt := s.now()

	tx := Transmission{
		Seq:       s.seq,
		Mode:      s.cfg.Mode,
		PacketLen: s.packetLen,
		Words:     len(s.words),
		SentAt:    sentAt,
		Blocked:   sentAt.Sub(start),
	}

	s.seq++
	s.sent++

	s.metrics.observe(tx.Words, s.seq, tx.Blocked.Seconds())
	if s.debug {
		s.logf("TX seq %3d: %d bytes, %d words, blocked %v", tx.Seq, tx.PacketLen, tx.Words, tx.Blocked)
	}
	for _, o := range s.observers {
		o.OnTransmit(tx)
	}

	return nil
}

// Run loops forever: Step, then sleep one period. It returns when ctx is
// cancelled or the transmitter fails. A stalled Send blocks the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logf("Transmit loop started")

	for {
		if err := s.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		timer := time.NewTimer(s.period)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logf("Transmit loop stopped at seq %d", s.seq)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Sequence returns the sequence number the next packet will carry
func (s *Scheduler) Sequence() uint8 { return s.seq }

// Sent returns the number of packets handed off so far
func (s *Scheduler) Sent() uint64 { return s.sent }

// State returns the state machine position
func (s *Scheduler) State() State { return s.state }

// Template returns the header template
func (s *Scheduler) Template() protocol.HeaderTemplate { return s.template }

// PacketLen returns the packet length in bytes
func (s *Scheduler) PacketLen() int { return s.packetLen }

// WordCount returns the word buffer length
func (s *Scheduler) WordCount() int { return len(s.words) }

// Period returns the cycle period
func (s *Scheduler) Period() time.Duration { return s.period }

// Encoder returns the payload encoder
func (s *Scheduler) Encoder() *coding.Encoder { return s.encoder }

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
