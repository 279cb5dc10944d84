package analysis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/packet"
	"github.com/dbehnke/backscatter/internal/payload"
	"github.com/dbehnke/backscatter/internal/protocol"
)

const payloadSize = 32

// tagFrames builds the receiver view (length byte onwards) of the first n
// packets a tag sends
func tagFrames(t *testing.T, mode coding.Mode, n int, randomize bool) [][]byte {
	t.Helper()
	enc, err := coding.NewEncoder(mode, coding.DefaultParams())
	require.NoError(t, err)

	tmpl := protocol.BuildHeaderTemplate(protocol.RECEIVER_CC1352, packet.BodyLen(payloadSize, enc))
	gen := payload.NewSampleGenerator()
	buf := make([]byte, payloadSize)

	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		gen.Generate(buf, randomize)
		pkt := packet.Assemble(nil, uint8(i), tmpl, buf, enc)
		frames = append(frames, append([]byte(nil), pkt[protocol.LENGTH_OFFSET:]...))
	}
	return frames
}

func logLine(i int, frame []byte, rssi int) string {
	hexBytes := make([]string, len(frame))
	for k, b := range frame {
		hexBytes[k] = fmt.Sprintf("%02X", b)
	}
	return fmt.Sprintf("12:00:%02d.%06d | %s | %d dBm", i/100%60, i%100*1000, strings.Join(hexBytes, " "), rssi)
}

func parse(t *testing.T, lines []string) []Frame {
	t.Helper()
	frames, err := ParseLog(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return frames
}

func TestParseLog(t *testing.T) {
	log := `12:00:00.000100 | 21 00 CA FE BA BE | -61 dBm
12:00:00.010200 | packet overflow | 0

garbage line
12:00:00.020300 | 21 01 00 | not-a-number
12:00:00.030400 | 21 | -60
12:00:00.040500 | 21 02 11 22 | -58 extra fields`

	frames, err := ParseLog(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, frames, 2)

	assert.Equal(t, uint8(0), frames[0].Seq)
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, frames[0].Payload)
	assert.Equal(t, -61, frames[0].RSSI)
	assert.Equal(t, 1, frames[0].Line)
	assert.Equal(t, 100*1000, frames[0].Time.Nanosecond())

	assert.Equal(t, uint8(2), frames[1].Seq)
	assert.Equal(t, []byte{0x11, 0x22}, frames[1].Payload)
	assert.Equal(t, -58, frames[1].RSSI)
	assert.Equal(t, 7, frames[1].Line)
}

func TestUnwrap(t *testing.T) {
	seqs := []uint8{250, 254, 253, 255, 1, 2, 200, 3, 255, 0}
	frames := make([]Frame, len(seqs))
	for i, s := range seqs {
		frames[i].Seq = s
	}

	Unwrap(frames)

	got := make([]int, len(frames))
	for i, f := range frames {
		got[i] = f.Unwrapped
	}
	// A small drop is a late frame, a large one a wrap
	assert.Equal(t, []int{250, 254, 253, 255, 257, 258, 456, 515, 767, 768}, got)
}

func TestComputeBER_CleanRun(t *testing.T) {
	for _, mode := range []coding.Mode{coding.Raw, coding.FEC, coding.ECC} {
		t.Run(mode.String(), func(t *testing.T) {
			var lines []string
			for i, f := range tagFrames(t, mode, 10, true) {
				lines = append(lines, logLine(i, f, -60))
			}

			res, err := ComputeBER(parse(t, lines), Params{
				Mode: mode, Coding: coding.DefaultParams(), PayloadSize: payloadSize, Randomize: true,
			})
			require.NoError(t, err)

			assert.Equal(t, 10, res.Packets)
			assert.Equal(t, 10, res.Unique)
			assert.Equal(t, 10, res.Transmitted)
			assert.Zero(t, res.Lost)
			assert.Zero(t, res.BitErrors)
			assert.Equal(t, int64(10*payloadSize*8), res.Bits)
			assert.Zero(t, res.BER)
			assert.InDelta(t, 1.0, res.ETX, 1e-9)
			assert.InDelta(t, -60.0, res.MeanRSSI, 1e-9)
		})
	}
}

func TestComputeBER_LossAndRepeats(t *testing.T) {
	tx := tagFrames(t, coding.Raw, 10, true)

	var lines []string
	for i, f := range tx {
		switch i {
		case 3:
			// Lost
			continue
		case 5:
			// Heard twice, once with two flipped bits
			bad := append([]byte(nil), f...)
			bad[4] ^= 0x81
			lines = append(lines, logLine(i, bad, -80))
		}
		lines = append(lines, logLine(i, f, -60))
	}

	res, err := ComputeBER(parse(t, lines), Params{
		Mode: coding.Raw, Coding: coding.DefaultParams(), PayloadSize: payloadSize, Randomize: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, res.Packets)
	assert.Equal(t, 9, res.Unique)
	assert.Equal(t, 1, res.Lost)
	assert.Equal(t, int64(payloadSize*8), res.BitErrors)
	assert.InDelta(t, 0.1, res.BER, 1e-9)
	assert.InDelta(t, 1.0, res.ETX, 1e-9)
	assert.Contains(t, res.String(), "1 lost")
}

func TestComputeBER_CorruptionCounted(t *testing.T) {
	tx := tagFrames(t, coding.Raw, 4, false)
	tx[2][10] ^= 0x0F

	var lines []string
	for i, f := range tx {
		lines = append(lines, logLine(i, f, -70))
	}

	res, err := ComputeBER(parse(t, lines), Params{
		Mode: coding.Raw, Coding: coding.DefaultParams(), PayloadSize: payloadSize,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.BitErrors)
	assert.InDelta(t, 4.0/float64(4*payloadSize*8), res.BER, 1e-12)
}

func TestComputeBER_ECCCorrectsSingleFlips(t *testing.T) {
	tx := tagFrames(t, coding.ECC, 5, true)
	for _, f := range tx {
		// One flip in the first repetition group of each payload bit pair
		f[2] ^= 0x80
		f[20] ^= 0x01
	}

	var lines []string
	for i, f := range tx {
		lines = append(lines, logLine(i, f, -75))
	}

	res, err := ComputeBER(parse(t, lines), Params{
		Mode: coding.ECC, Coding: coding.DefaultParams(), PayloadSize: payloadSize, Randomize: true,
	})
	require.NoError(t, err)
	assert.Zero(t, res.BitErrors)
}

func TestComputeBER_SequenceWrap(t *testing.T) {
	tx := tagFrames(t, coding.Raw, 300, true)

	var lines []string
	for i, f := range tx {
		if i%7 == 0 {
			continue
		}
		lines = append(lines, logLine(i, f, -65))
	}

	frames := parse(t, lines)
	res, err := ComputeBER(frames, Params{
		Mode: coding.Raw, Coding: coding.DefaultParams(), PayloadSize: payloadSize, Randomize: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 299, frames[len(frames)-1].Unwrapped)
	assert.Equal(t, 1, res.First)
	assert.Equal(t, 299, res.Last)
	assert.Equal(t, 300, res.Transmitted)
	assert.Equal(t, 257, res.Packets)
	// Multiples of 7 between 1 and 299
	assert.Equal(t, 42, res.Lost)
	assert.Equal(t, int64(42*payloadSize*8), res.BitErrors)
	assert.InDelta(t, 300.0/257.0, res.ETX, 1e-9)
}

func TestComputeBER_LateFrameAtEnd(t *testing.T) {
	tx := tagFrames(t, coding.Raw, 4, true)

	// Seq 2 arrives after seq 3
	var lines []string
	for _, i := range []int{0, 1, 3, 2} {
		lines = append(lines, logLine(i, tx[i], -60))
	}

	res, err := ComputeBER(parse(t, lines), Params{
		Mode: coding.Raw, Coding: coding.DefaultParams(), PayloadSize: payloadSize, Randomize: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Last)
	assert.Equal(t, 4, res.Transmitted)
	assert.Zero(t, res.Lost)
	assert.Zero(t, res.BitErrors)
}

func TestComputeBER_Errors(t *testing.T) {
	_, err := ComputeBER(nil, Params{Mode: coding.Raw, Coding: coding.DefaultParams(), PayloadSize: 32})
	assert.ErrorIs(t, err, ErrNoFrames)

	frames := []Frame{{Seq: 0, Payload: []byte{0}}}
	_, err = ComputeBER(frames, Params{Mode: coding.Raw, Coding: coding.DefaultParams()})
	assert.Error(t, err)

	_, err = ComputeBER(frames, Params{Mode: coding.FEC, Coding: coding.Params{WalshOrder: 9, Repetition: 3}, PayloadSize: 32})
	assert.Error(t, err)
}
