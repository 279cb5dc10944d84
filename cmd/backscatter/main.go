package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"

	"github.com/dbehnke/backscatter/internal/config"
	"github.com/dbehnke/backscatter/internal/database"
	"github.com/dbehnke/backscatter/internal/payload"
	"github.com/dbehnke/backscatter/internal/scheduler"
	"github.com/dbehnke/backscatter/internal/transmitter"
)

const VERSION = "1.0.0"

// Tag wires the transmit loop to its transmitter and optional sinks
type Tag struct {
	cfg        *config.Config
	tx         transmitter.Transmitter
	serializer *transmitter.Serializer
	scheduler  *scheduler.Scheduler

	db       *database.DB
	recorder *database.Recorder
	metrics  *http.Server
	debug    bool
}

func main() {
	app := cli.NewApp()
	app.Name = "backscatter"
	app.Usage = "backscatter tag transmit loop"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: getDefaultConfig(),
			Usage: "Configuration file path",
		},
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "Log every packet",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("backscatter: %v", err)
	}
}

func run(c *cli.Context) error {
	configFile := c.String("config")
	if c.NArg() > 0 {
		configFile = c.Args().First()
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Backscatter tag v%s starting with config: %s", VERSION, configFile)

	cfg := config.NewConfig(configFile)
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	tag, err := NewTag(cfg, c.Bool("debug") || cfg.GetLogDebug())
	if err != nil {
		return err
	}
	defer tag.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	err = tag.scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	log.Printf("Backscatter tag stopped after %s packets", humanize.Comma(int64(tag.sent())))
	return err
}

// NewTag performs the Init state: transmitter, generator, scheduler and
// the optional transmit log and metrics endpoint
func NewTag(cfg *config.Config, debug bool) (*Tag, error) {
	t := &Tag{cfg: cfg, debug: debug}

	if err := t.openTransmitter(); err != nil {
		return nil, err
	}

	opts := []scheduler.Option{
		scheduler.WithLogger(log.New(os.Stdout, "[TAG] ", log.LstdFlags)),
		scheduler.WithDebug(debug),
	}

	if cfg.GetDatabaseEnabled() {
		db, err := database.NewDB(database.Config{
			Path:  cfg.GetDatabasePath(),
			Debug: cfg.GetDatabaseDebug(),
		}, log.New(os.Stdout, "[DB] ", log.LstdFlags))
		if err != nil {
			// The transmit log is optional
			log.Printf("Failed to initialize database: %v", err)
			log.Printf("Continuing without transmit log...")
		} else {
			t.db = db
			t.recorder = database.NewRecorder(database.NewTransmissionRepository(db.GetDB()),
				log.New(os.Stdout, "[DB] ", log.LstdFlags))
			opts = append(opts, scheduler.WithObserver(t.recorder))
			log.Printf("Transmit log run ID: %s", t.recorder.RunID())
		}
	}

	if cfg.GetMetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGoCollector())
		opts = append(opts, scheduler.WithMetrics(scheduler.NewMetrics(reg)))
		t.startMetrics(reg)
	}

	s, err := scheduler.New(cfg.SchedulerConfig(), t.tx, payload.NewSampleGenerator(), opts...)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.scheduler = s

	return t, nil
}

func (t *Tag) openTransmitter() error {
	switch t.cfg.GetTransmitterType() {
	case config.TX_UDP:
		udp := transmitter.NewUDP(t.cfg.GetTxAddress(), int(t.cfg.GetTxPort()), log.New(os.Stdout, "[UDP] ", log.LstdFlags))
		if err := udp.Open(); err != nil {
			return fmt.Errorf("failed to open UDP transmitter: %w", err)
		}
		t.tx = udp
	default:
		log.Printf("Serializer: %s, FIFO %d words, history %d words",
			humanize.SI(float64(t.cfg.GetBitRate()), "bit/s"), t.cfg.GetFIFODepth(), t.cfg.GetHistoryWords())
		ser, err := transmitter.NewSerializer(t.cfg.SerializerConfig(), log.New(os.Stdout, "[SER] ", log.LstdFlags))
		if err != nil {
			return fmt.Errorf("failed to load serializer: %w", err)
		}
		t.tx = ser
		t.serializer = ser
	}
	return nil
}

func (t *Tag) startMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	t.metrics = &http.Server{
		Addr:              t.cfg.GetMetricsAddress(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Metrics listening on %s", t.metrics.Addr)
		if err := t.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}

func (t *Tag) sent() uint64 {
	if t.scheduler == nil {
		return 0
	}
	return t.scheduler.Sent()
}

// Close stops the transmitter and flushes the transmit log
func (t *Tag) Close() {
	if t.serializer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := t.serializer.Flush(ctx); err != nil {
			log.Printf("Serializer flush: %v", err)
		}
		cancel()

		queued, shifted := t.serializer.Stats()
		log.Printf("Serializer: %s words queued, %s shifted", humanize.Comma(int64(queued)), humanize.Comma(int64(shifted)))
		if t.debug {
			if words := t.serializer.Shifted(); len(words) > 0 {
				log.Printf("Last %d words on air: %08X", len(words), words)
			}
		}
	}
	if t.tx != nil {
		t.tx.Close()
	}
	if t.recorder != nil {
		if err := t.recorder.Close(); err != nil {
			log.Printf("Transmit log: %v", err)
		}
	}
	if t.db != nil {
		t.db.Close()
	}
	if t.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		t.metrics.Shutdown(ctx)
		cancel()
	}
}

// getDefaultConfig returns the default configuration file path
func getDefaultConfig() string {
	if _, err := os.Stat("backscatter.ini"); err == nil {
		return "backscatter.ini"
	}
	return "/etc/backscatter.ini"
}
