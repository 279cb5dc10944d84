package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/dbehnke/backscatter/internal/analysis"
	"github.com/dbehnke/backscatter/internal/config"
	"github.com/dbehnke/backscatter/internal/database"
)

const VERSION = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "berstat"
	app.Usage = "bit error rate and ETX of a receiver log"
	app.ArgsUsage = "LOGFILE"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "backscatter.ini",
			Usage: "Tag configuration the log was recorded with",
		},
		cli.StringFlag{
			Name:  "db",
			Usage: "Store the report in this database (defaults to the configured one when enabled)",
		},
		cli.StringFlag{
			Name:  "run",
			Usage: "Tag run ID the log belongs to (defaults to the latest logged run)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("berstat: %v", err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("expected exactly one LOGFILE", 2)
	}
	logFile := c.Args().First()

	cfg := config.NewConfig(c.String("config"))
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	f, err := os.Open(logFile)
	if err != nil {
		return err
	}
	defer f.Close()

	frames, err := analysis.ParseLog(f)
	if err != nil {
		return err
	}

	res, err := analysis.ComputeBER(frames, analysis.Params{
		Mode:        cfg.GetMode(),
		Coding:      cfg.GetCodingParams(),
		PayloadSize: int(cfg.GetPayloadSize()),
		Randomize:   cfg.GetRandomize(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", logFile, err)
	}

	fmt.Printf("Log:          %s\n", logFile)
	fmt.Printf("Mode:         %s\n", res.Mode)
	fmt.Printf("Frames:       %s (%s unique)\n", humanize.Comma(int64(res.Packets)), humanize.Comma(int64(res.Unique)))
	fmt.Printf("Transmitted:  %s (seq %d to %d, %s lost)\n",
		humanize.Comma(int64(res.Transmitted)), res.First, res.Last, humanize.Comma(int64(res.Lost)))
	fmt.Printf("Bit errors:   %s of %s\n", humanize.Comma(res.BitErrors), humanize.Comma(res.Bits))
	fmt.Printf("BER:          %.4e\n", res.BER)
	fmt.Printf("ETX:          %.4f\n", res.ETX)
	fmt.Printf("Mean RSSI:    %.1f dBm\n", res.MeanRSSI)

	dbPath := c.String("db")
	if dbPath == "" && cfg.GetDatabaseEnabled() {
		dbPath = cfg.GetDatabasePath()
	}
	if dbPath == "" {
		return nil
	}

	return saveReport(os.Stdout, dbPath, c.String("run"), logFile, res)
}

func saveReport(w io.Writer, path, runID, source string, res analysis.Result) error {
	db, err := database.NewDB(database.Config{Path: path}, log.New(os.Stderr, "[DB] ", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	transmissions := database.NewTransmissionRepository(db.GetDB())
	reports := database.NewReportRepository(db.GetDB())

	if runID == "" {
		// Best effort: the latest tag run in the same database
		if latest, err := transmissions.LatestRun(); err == nil {
			runID = latest
		}
	}

	if runID != "" {
		logged, err := transmissions.CountByRun(runID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Tag log:      %s packets logged for run %s", humanize.Comma(logged), runID)
		if last, err := transmissions.Recent(runID, 1); err == nil && len(last) == 1 {
			fmt.Fprintf(w, ", last %s", last[0])
		}
		fmt.Fprintln(w)
	}

	previous, err := reports.Latest(res.Mode.String())
	if err != nil {
		return err
	}
	if previous != nil {
		fmt.Fprintf(w, "Previous:     %s, %s\n", previous, humanize.Time(previous.CreatedAt))
		fmt.Fprintf(w, "BER change:   %+.4e\n", res.BER-previous.BER)
	}

	report := &database.BERReport{
		RunID:       runID,
		Source:      filepath.Base(source),
		Mode:        res.Mode.String(),
		Packets:     res.Packets,
		Transmitted: res.Transmitted,
		BitErrors:   res.BitErrors,
		BER:         res.BER,
		ETX:         res.ETX,
	}
	if err := reports.Save(report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	fmt.Fprintf(w, "Report:       #%d saved to %s", report.ID, path)
	if runID != "" {
		fmt.Fprintf(w, " (run %s)", runID)
	}
	fmt.Fprintln(w)
	return nil
}
