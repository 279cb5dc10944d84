// Package analysis evaluates receiver logs of a tag run: it recovers the
// sequence of received frames, decodes their payloads and scores them
// against the reproducible sample stream.
package analysis

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Receiver log layout: "time | hex frame | rssi ..."
const (
	LOG_TIME_LAYOUT  = "15:04:05.999999999"
	LOG_OVERFLOW     = "packet overflow"
	FRAME_SEQ_OFFSET = 1 // First byte is the length byte
	FRAME_PAYLOAD    = 2
	SEQ_WRAP         = 256
	SEQ_WRAP_SLACK   = 50
)

// Frame is one received packet as the receiver logged it
type Frame struct {
	Line    int
	Time    time.Time
	Seq     uint8
	Payload []byte // Coded payload
	RSSI    int

	// Unwrapped is the run wide sequence number, set by Unwrap
	Unwrapped int
}

// ParseLog reads a receiver log. Lines that are empty, reported as FIFO
// overflows or malformed are skipped.
func ParseLog(r io.Reader) ([]Frame, error) {
	var frames []Frame

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.Contains(text, LOG_OVERFLOW) {
			continue
		}

		frame, err := parseLine(text)
		if err != nil {
			continue
		}
		frame.Line = line
		frames = append(frames, frame)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return frames, nil
}

func parseLine(text string) (Frame, error) {
	parts := strings.Split(text, "|")
	if len(parts) < 3 {
		return Frame{}, fmt.Errorf("want 3 fields, got %d", len(parts))
	}

	ts, err := time.Parse(LOG_TIME_LAYOUT, strings.TrimSpace(parts[0]))
	if err != nil {
		return Frame{}, err
	}

	data, err := parseHexBytes(parts[1])
	if err != nil {
		return Frame{}, err
	}
	if len(data) < FRAME_PAYLOAD {
		return Frame{}, fmt.Errorf("frame too short: %d bytes", len(data))
	}

	rssiField := strings.Fields(parts[2])
	if len(rssiField) == 0 {
		return Frame{}, fmt.Errorf("missing rssi")
	}
	rssi, err := strconv.Atoi(rssiField[0])
	if err != nil {
		return Frame{}, err
	}

	return Frame{
		Time:    ts,
		Seq:     data[FRAME_SEQ_OFFSET],
		Payload: data[FRAME_PAYLOAD:],
		RSSI:    rssi,
	}, nil
}

func parseHexBytes(field string) ([]byte, error) {
	tokens := strings.Fields(field)
	out := make([]byte, 0, len(tokens))
	for _, tok := range tokens {
		b, err := hex.DecodeString(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Unwrap assigns run wide sequence numbers in place. The 8-bit counter is
// taken to have wrapped whenever it drops by more than SEQ_WRAP_SLACK from
// the previous frame; smaller drops are late or repeated frames.
func Unwrap(frames []Frame) {
	wraps := 0
	for i := range frames {
		if i > 0 && int(frames[i].Seq) < int(frames[i-1].Seq)-SEQ_WRAP_SLACK {
			wraps++
		}
		frames[i].Unwrapped = wraps*SEQ_WRAP + int(frames[i].Seq)
	}
}
