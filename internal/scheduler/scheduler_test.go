package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/packet"
	"github.com/dbehnke/backscatter/internal/payload"
	"github.com/dbehnke/backscatter/internal/protocol"
	"github.com/dbehnke/backscatter/internal/transmitter"
)

// recordingTransmitter keeps a copy of every word buffer it accepts
type recordingTransmitter struct {
	mu    sync.Mutex
	sends [][]uint32
	err   error
}

func (r *recordingTransmitter) Send(ctx context.Context, words []uint32) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, append([]uint32(nil), words...))
	return nil
}

func (r *recordingTransmitter) Close() error { return nil }

func (r *recordingTransmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

// stalledTransmitter never accepts anything
type stalledTransmitter struct{}

func (stalledTransmitter) Send(ctx context.Context, words []uint32) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledTransmitter) Close() error { return nil }

// fixedGenerator writes the same bytes every cycle
type fixedGenerator struct {
	data []byte
}

func (g fixedGenerator) Generate(buf []byte, randomize bool) {
	copy(buf, g.data)
}

func defaultConfig(mode coding.Mode) Config {
	return Config{
		Receiver:    protocol.RECEIVER_CC1352,
		PayloadSize: 32,
		Randomize:   true,
		Mode:        mode,
		Params:      coding.DefaultParams(),
		BitRate:     transmitter.DEFAULT_BIT_RATE,
	}
}

func TestNew_Init(t *testing.T) {
	tx := &recordingTransmitter{}
	s, err := New(defaultConfig(coding.Raw), tx, payload.NewSampleGenerator())
	require.NoError(t, err)

	assert.Equal(t, StateInit, s.State())
	assert.Equal(t, uint8(0), s.Sequence())
	assert.Equal(t, 42, s.PacketLen())
	assert.Equal(t, 11, s.WordCount())
	assert.Equal(t, RAW_PERIOD, s.Period())
	assert.Equal(t, 33, s.Template().BodyLength())
	assert.Equal(t, coding.Raw, s.Encoder().Mode())
	assert.Equal(t, 0, tx.count())
}

func TestNew_Rejects(t *testing.T) {
	gen := payload.NewSampleGenerator()
	tx := &recordingTransmitter{}

	_, err := New(defaultConfig(coding.Raw), nil, gen)
	assert.Error(t, err)

	_, err = New(defaultConfig(coding.Raw), tx, nil)
	assert.Error(t, err)

	cfg := defaultConfig(coding.Raw)
	cfg.Receiver = 42
	_, err = New(cfg, tx, gen)
	assert.Error(t, err)

	cfg = defaultConfig(coding.Raw)
	cfg.PayloadSize = 0
	_, err = New(cfg, tx, gen)
	assert.Error(t, err)

	// 100 bytes triple repeated overflows the length byte
	cfg = defaultConfig(coding.ECC)
	cfg.PayloadSize = 100
	cfg.Period = time.Second
	_, err = New(cfg, tx, gen)
	assert.Error(t, err)

	cfg = defaultConfig(coding.ECC)
	cfg.BitRate = 10000
	_, err = New(cfg, tx, gen)
	assert.True(t, errors.Is(err, ErrTimingViolation))
}

func TestStep_Receiver1352Payload4(t *testing.T) {
	cfg := defaultConfig(coding.Raw)
	cfg.PayloadSize = 4
	tx := &recordingTransmitter{}
	gen := fixedGenerator{data: []byte{0xCA, 0xFE, 0xBA, 0xBE}}

	s, err := New(cfg, tx, gen)
	require.NoError(t, err)
	assert.Equal(t, protocol.HEADER_LEN, len(s.Template()))
	assert.Equal(t, 14, s.PacketLen())
	assert.Equal(t, 4, s.WordCount())

	require.NoError(t, s.Step(context.Background()))
	require.NoError(t, s.Step(context.Background()))

	require.Equal(t, 2, tx.count())
	assert.Equal(t, []uint32{0xAAAAAAAA, 0x930B51DE, 0x0500CAFE, 0xBABE0000}, tx.sends[0])
	assert.Equal(t, []uint32{0xAAAAAAAA, 0x930B51DE, 0x0501CAFE, 0xBABE0000}, tx.sends[1])
	assert.Equal(t, StateLoop, s.State())
}

func TestStep_SequenceWraps(t *testing.T) {
	tx := &recordingTransmitter{}
	s, err := New(defaultConfig(coding.Raw), tx, payload.NewSampleGenerator())
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		require.NoError(t, s.Step(context.Background()))
	}

	require.Equal(t, 300, tx.count())
	buf := make([]byte, 0, 64)
	for i, words := range tx.sends {
		buf = packet.Unpack(buf, words)
		assert.Equal(t, uint8(i%256), packet.Sequence(buf), "packet %d", i)
	}
	assert.Equal(t, uint8(300%256), s.Sequence())
	assert.Equal(t, uint64(300), s.Sent())
}

func TestStep_CodedPayloadDecodes(t *testing.T) {
	for _, mode := range []coding.Mode{coding.Raw, coding.FEC, coding.ECC} {
		t.Run(mode.String(), func(t *testing.T) {
			tx := &recordingTransmitter{}
			s, err := New(defaultConfig(mode), tx, payload.NewSampleGenerator())
			require.NoError(t, err)
			require.NoError(t, s.Step(context.Background()))

			expected := make([]byte, 32)
			payload.NewSampleGenerator().Generate(expected, true)

			pkt := packet.Unpack(nil, tx.sends[0])[:s.PacketLen()]
			assert.Equal(t, expected, s.Encoder().Decode(pkt[protocol.HEADER_LEN:], 32))
		})
	}
}

func TestStep_SendError(t *testing.T) {
	tx := &recordingTransmitter{err: transmitter.ErrClosed}
	s, err := New(defaultConfig(coding.Raw), tx, payload.NewSampleGenerator())
	require.NoError(t, err)

	err = s.Step(context.Background())
	assert.True(t, errors.Is(err, transmitter.ErrClosed))
	// Sequence only advances after a handoff
	assert.Equal(t, uint8(0), s.Sequence())
}

func TestStep_Observers(t *testing.T) {
	var seen []Transmission
	s, err := New(defaultConfig(coding.FEC), &recordingTransmitter{}, payload.NewSampleGenerator(),
		WithObserver(ObserverFunc(func(tx Transmission) { seen = append(seen, tx) })))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Step(context.Background()))
	}

	require.Len(t, seen, 3)
	for i, tx := range seen {
		assert.Equal(t, uint8(i), tx.Seq)
		assert.Equal(t, coding.FEC, tx.Mode)
		assert.Equal(t, 74, tx.PacketLen)
		assert.Equal(t, 19, tx.Words)
	}
}

func TestStep_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s, err := New(defaultConfig(coding.ECC), &recordingTransmitter{}, payload.NewSampleGenerator(), WithMetrics(m))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Step(context.Background()))
	}

	assert.Equal(t, float64(5), testutil.ToFloat64(m.packets))
	assert.Equal(t, float64(5*27), testutil.ToFloat64(m.words))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.sequence))
}

func TestRun_StalledSendBlocksUntilCancelled(t *testing.T) {
	s, err := New(defaultConfig(coding.Raw), stalledTransmitter{}, payload.NewSampleGenerator())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, uint8(0), s.Sequence())
}

func TestRun_WithSerializer(t *testing.T) {
	ser, err := transmitter.NewSerializer(transmitter.SerializerConfig{
		Pins:         []uint8{6, 27},
		BitRate:      transmitter.DEFAULT_BIT_RATE,
		FIFODepth:    transmitter.DEFAULT_FIFO_DEPTH,
		HistoryWords: 64,
	}, nil)
	require.NoError(t, err)
	defer ser.Close()

	s, err := New(defaultConfig(coding.Raw), ser, payload.NewSampleGenerator())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	// One packet every 10ms
	assert.GreaterOrEqual(t, int(s.Sequence()), 3)
	assert.LessOrEqual(t, int(s.Sequence()), 7)

	// The deadline may cut the last handoff short
	queued, _ := ser.Stats()
	assert.GreaterOrEqual(t, queued, uint64(int(s.Sequence())*s.WordCount()))
	assert.Less(t, queued, uint64((int(s.Sequence())+1)*s.WordCount()))
}

func TestCheckTiming_AllModes(t *testing.T) {
	for _, mode := range []coding.Mode{coding.Raw, coding.FEC, coding.ECC} {
		enc, err := coding.NewEncoder(mode, coding.DefaultParams())
		require.NoError(t, err)

		packetLen := packet.Len(32, enc)
		period := DefaultPeriod(mode)
		need := TransmitTime(packetLen, transmitter.DEFAULT_BIT_RATE)

		// period >= words * 32 / bitRate
		assert.Greater(t, period, need, "mode %s", mode)
		assert.NoError(t, CheckTiming(period, packetLen, transmitter.DEFAULT_BIT_RATE))
	}
}

func TestCheckTiming_Violation(t *testing.T) {
	// 14 bytes pad to 4 words: 128 bits at 12800 bit/s = 10ms
	assert.Equal(t, 10*time.Millisecond, TransmitTime(14, 12800))
	err := CheckTiming(10*time.Millisecond, 14, 12800)
	assert.True(t, errors.Is(err, ErrTimingViolation))

	assert.NoError(t, CheckTiming(11*time.Millisecond, 14, 12800))
	assert.Error(t, CheckTiming(time.Second, 14, 0))
}

func TestDefaultPeriod(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, DefaultPeriod(coding.Raw))
	assert.Equal(t, 20*time.Millisecond, DefaultPeriod(coding.FEC))
	assert.Equal(t, 30*time.Millisecond, DefaultPeriod(coding.ECC))
	assert.Equal(t, "Loop", StateLoop.String())
}
