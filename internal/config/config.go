package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/backscatter/internal/coding"
	"github.com/dbehnke/backscatter/internal/packet"
	"github.com/dbehnke/backscatter/internal/protocol"
	"github.com/dbehnke/backscatter/internal/scheduler"
	"github.com/dbehnke/backscatter/internal/transmitter"
)

// Transmitter types
const (
	TX_SERIALIZER = "serializer"
	TX_UDP        = "udp"
)

// Config represents the tag configuration. It is read once at start and
// never changes afterwards.
type Config struct {
	filename string

	// Tag section
	receiver    string
	payloadSize uint32
	randomize   bool
	antennaPins []uint8
	pinsErr     error

	// Coding section
	mode       string
	walshOrder uint32
	repetition uint32

	// Timing section
	bitRate   uint32
	rawPeriod uint32 // ms
	fecPeriod uint32 // ms
	eccPeriod uint32 // ms

	// Transmitter section
	txType       string
	fifoDepth    uint32
	historyWords uint32
	txAddress    string
	txPort       uint32

	// Database section
	databaseEnabled bool
	databasePath    string
	databaseDebug   bool

	// Metrics section
	metricsEnabled bool
	metricsAddress string

	// Log section
	logDebug bool
}

// NewConfig creates a new configuration instance
func NewConfig(filename string) *Config {
	params := coding.DefaultParams()
	return &Config{
		filename: filename,
		// Reference tag defaults
		receiver:    "1352",
		payloadSize: 32,
		randomize:   true,
		antennaPins: []uint8{6, 27},

		mode:       "raw",
		walshOrder: uint32(params.WalshOrder),
		repetition: uint32(params.Repetition),

		bitRate:   transmitter.DEFAULT_BIT_RATE,
		rawPeriod: uint32(scheduler.RAW_PERIOD / time.Millisecond),
		fecPeriod: uint32(scheduler.FEC_PERIOD / time.Millisecond),
		eccPeriod: uint32(scheduler.ECC_PERIOD / time.Millisecond),

		txType:       TX_SERIALIZER,
		fifoDepth:    transmitter.DEFAULT_FIFO_DEPTH,
		historyWords: 256,
		txAddress:    "127.0.0.1",
		txPort:       47000,

		databaseEnabled: false,
		databasePath:    "data/backscatter.db",

		metricsEnabled: false,
		metricsAddress: ":9100",
	}
}

// Load loads configuration from the specified file
func (c *Config) Load() error {
	file, err := os.Open(c.filename)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %v", c.filename, err)
	}
	defer file.Close()

	return c.parseINI(file)
}

// LoadFromString loads configuration from a string (useful for testing)
func (c *Config) LoadFromString(data string) error {
	return c.parseINIString(data)
}

func (c *Config) parseINI(file *os.File) error {
	scanner := bufio.NewScanner(file)
	return c.parseINIScanner(scanner)
}

func (c *Config) parseINIString(data string) error {
	scanner := bufio.NewScanner(strings.NewReader(data))
	return c.parseINIScanner(scanner)
}

func (c *Config) parseINIScanner(scanner *bufio.Scanner) error {
	var currentSection string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if len(line) == 0 || line[0] == '#' || line[0] == ';' {
			continue
		}

		if line[0] == '[' && line[len(line)-1] == ']' {
			currentSection = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch currentSection {
		case "Tag":
			c.parseTagSection(key, value)
		case "Coding":
			c.parseCodingSection(key, value)
		case "Timing":
			c.parseTimingSection(key, value)
		case "Transmitter":
			c.parseTransmitterSection(key, value)
		case "Database":
			c.parseDatabaseSection(key, value)
		case "Metrics":
			c.parseMetricsSection(key, value)
		case "Log":
			c.parseLogSection(key, value)
		}
	}

	return scanner.Err()
}

func (c *Config) parseTagSection(key, value string) {
	switch key {
	case "Receiver":
		c.receiver = value
	case "PayloadSize":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.payloadSize = uint32(v)
		}
	case "Randomize":
		c.randomize = c.parseBool(value)
	case "AntennaPins":
		c.antennaPins, c.pinsErr = c.parseByteArray(value)
	}
}

func (c *Config) parseCodingSection(key, value string) {
	switch key {
	case "Mode":
		c.mode = value
	case "WalshOrder":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.walshOrder = uint32(v)
		}
	case "Repetition":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.repetition = uint32(v)
		}
	}
}

func (c *Config) parseTimingSection(key, value string) {
	switch key {
	case "BitRate":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.bitRate = uint32(v)
		}
	case "RawPeriod":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.rawPeriod = uint32(v)
		}
	case "FECPeriod":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.fecPeriod = uint32(v)
		}
	case "ECCPeriod":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.eccPeriod = uint32(v)
		}
	}
}

func (c *Config) parseTransmitterSection(key, value string) {
	switch key {
	case "Type":
		c.txType = strings.ToLower(value)
	case "FIFODepth":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.fifoDepth = uint32(v)
		}
	case "HistoryWords":
		if v, err := strconv.ParseUint(value, 10, 32); err == nil {
			c.historyWords = uint32(v)
		}
	case "Address":
		c.txAddress = value
	case "Port":
		if v, err := strconv.ParseUint(value, 10, 16); err == nil {
			c.txPort = uint32(v)
		}
	}
}

func (c *Config) parseDatabaseSection(key, value string) {
	switch key {
	case "Enabled":
		c.databaseEnabled = c.parseBool(value)
	case "Path":
		c.databasePath = value
	case "Debug":
		c.databaseDebug = c.parseBool(value)
	}
}

func (c *Config) parseMetricsSection(key, value string) {
	switch key {
	case "Enabled":
		c.metricsEnabled = c.parseBool(value)
	case "Address":
		c.metricsAddress = value
	}
}

func (c *Config) parseLogSection(key, value string) {
	switch key {
	case "Debug":
		c.logDebug = c.parseBool(value)
	}
}

func (c *Config) parseBool(value string) bool {
	return value == "1" || strings.ToLower(value) == "true" || strings.ToLower(value) == "yes"
}

// parseByteArray parses a comma separated list. Every entry must parse; the
// entries that do are still returned.
func (c *Config) parseByteArray(value string) ([]uint8, error) {
	parts := strings.Split(value, ",")
	result := make([]uint8, 0, len(parts))

	var firstErr error
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid list entry %q in %q", strings.TrimSpace(part), value)
			}
			continue
		}
		result = append(result, uint8(v))
	}

	return result, firstErr
}

// Validate checks the configuration once before the tag starts. A period
// too short for the packet is reported as scheduler.ErrTimingViolation.
func (c *Config) Validate() error {
	if _, err := protocol.ParseReceiverID(c.receiver); err != nil {
		return err
	}

	mode, err := coding.ParseMode(c.mode)
	if err != nil {
		return err
	}

	params := c.GetCodingParams()
	if err := params.Validate(); err != nil {
		return err
	}

	if c.payloadSize == 0 {
		return fmt.Errorf("payload size must be positive")
	}

	if c.pinsErr != nil {
		return fmt.Errorf("antenna pins: %w", c.pinsErr)
	}
	if err := transmitter.ValidatePins(c.antennaPins); err != nil {
		return err
	}

	if c.bitRate == 0 {
		return fmt.Errorf("bit rate must be positive")
	}

	switch c.txType {
	case TX_SERIALIZER:
		if c.fifoDepth == 0 {
			return fmt.Errorf("FIFO depth must be positive")
		}
	case TX_UDP:
		if c.txAddress == "" || c.txPort == 0 {
			return fmt.Errorf("udp transmitter needs Address and Port")
		}
	default:
		return fmt.Errorf("unknown transmitter type %q (want %s or %s)", c.txType, TX_SERIALIZER, TX_UDP)
	}

	// Coded lengths must keep their order for every mode, not only the
	// selected one
	size := int(c.payloadSize)
	raw, _ := coding.NewEncoder(coding.Raw, params)
	fec, _ := coding.NewEncoder(coding.FEC, params)
	ecc, _ := coding.NewEncoder(coding.ECC, params)
	if !(ecc.EncodedLen(size) > fec.EncodedLen(size) && fec.EncodedLen(size) > raw.EncodedLen(size)) {
		return fmt.Errorf("walsh order %d and repetition %d do not give ECC > FEC > raw expansion",
			params.WalshOrder, params.Repetition)
	}

	enc, _ := coding.NewEncoder(mode, params)
	if body := packet.BodyLen(size, enc); body > protocol.MAX_BODY_LENGTH {
		return fmt.Errorf("%s payload of %d bytes codes to %d bytes, length byte holds at most %d",
			mode, size, body, protocol.MAX_BODY_LENGTH)
	}

	return scheduler.CheckTiming(c.GetPeriod(), packet.Len(size, enc), int(c.bitRate))
}

// SchedulerConfig returns the loop configuration. Call Validate first.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		Receiver:    c.GetReceiver(),
		PayloadSize: int(c.GetPayloadSize()),
		Randomize:   c.GetRandomize(),
		Mode:        c.GetMode(),
		Params:      c.GetCodingParams(),
		BitRate:     int(c.GetBitRate()),
		Period:      c.GetPeriod(),
	}
}

// SerializerConfig returns the simulated serializer configuration
func (c *Config) SerializerConfig() transmitter.SerializerConfig {
	return transmitter.SerializerConfig{
		Pins:         c.GetAntennaPins(),
		BitRate:      int(c.GetBitRate()),
		FIFODepth:    int(c.GetFIFODepth()),
		HistoryWords: int(c.GetHistoryWords()),
	}
}

// Getter methods for Tag section
func (c *Config) GetReceiver() protocol.ReceiverID {
	id, _ := protocol.ParseReceiverID(c.receiver)
	return id
}
func (c *Config) GetPayloadSize() uint32  { return c.payloadSize }
func (c *Config) GetRandomize() bool      { return c.randomize }
func (c *Config) GetAntennaPins() []uint8 { return append([]uint8(nil), c.antennaPins...) }

// Getter methods for Coding section
func (c *Config) GetMode() coding.Mode {
	m, _ := coding.ParseMode(c.mode)
	return m
}
func (c *Config) GetWalshOrder() uint32 { return c.walshOrder }
func (c *Config) GetRepetition() uint32 { return c.repetition }
func (c *Config) GetCodingParams() coding.Params {
	return coding.Params{
		WalshOrder: int(c.GetWalshOrder()),
		Repetition: int(c.GetRepetition()),
	}
}

// Getter methods for Timing section
func (c *Config) GetBitRate() uint32 { return c.bitRate }
func (c *Config) GetModePeriod(mode coding.Mode) time.Duration {
	switch mode {
	case coding.FEC:
		return time.Duration(c.fecPeriod) * time.Millisecond
	case coding.ECC:
		return time.Duration(c.eccPeriod) * time.Millisecond
	default:
		return time.Duration(c.rawPeriod) * time.Millisecond
	}
}
func (c *Config) GetPeriod() time.Duration { return c.GetModePeriod(c.GetMode()) }

// Getter methods for Transmitter section
func (c *Config) GetTransmitterType() string { return c.txType }
func (c *Config) GetFIFODepth() uint32       { return c.fifoDepth }
func (c *Config) GetHistoryWords() uint32    { return c.historyWords }
func (c *Config) GetTxAddress() string       { return c.txAddress }
func (c *Config) GetTxPort() uint32          { return c.txPort }

// Getter methods for Database section
func (c *Config) GetDatabaseEnabled() bool { return c.databaseEnabled }
func (c *Config) GetDatabasePath() string  { return c.databasePath }
func (c *Config) GetDatabaseDebug() bool   { return c.databaseDebug }

// Getter methods for Metrics section
func (c *Config) GetMetricsEnabled() bool   { return c.metricsEnabled }
func (c *Config) GetMetricsAddress() string { return c.metricsAddress }

// Getter methods for Log section
func (c *Config) GetLogDebug() bool { return c.logDebug }
