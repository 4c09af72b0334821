// Command leqreport prints the daily day/night Leq of a partition CSV.
//
//	leqreport [-tz Europe/Rome] [-policy count|nominal] [-fill-gaps] [-publish] <file.csv>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/noise-monitor-service/internal/adapter/kafka"
	"github.com/couchcryptid/noise-monitor-service/internal/config"
	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	"github.com/couchcryptid/noise-monitor-service/internal/observability"
	"github.com/couchcryptid/noise-monitor-service/internal/report"
)

const (
	exitOK    = 0
	exitInput = 1
	exitUsage = 2
)

// publisherFactory builds the summary publisher for -publish.
type publisherFactory func(cfg *config.ReportConfig, policy domain.DenominatorPolicy, stderr io.Writer) (report.Publisher, func() error)

func kafkaPublisher(cfg *config.ReportConfig, policy domain.DenominatorPolicy, stderr io.Writer) (report.Publisher, func() error) {
	logger := observability.NewLoggerTo(stderr, cfg.LogLevel, cfg.LogFormat)
	w := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, policy, logger)
	return w, w.Close
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, kafkaPublisher)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, newPublisher publisherFactory) int {
	cfg, err := config.LoadReport()
	if err != nil {
		fmt.Fprintln(stderr, "leqreport:", err)
		return exitUsage
	}

	fs := flag.NewFlagSet("leqreport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: leqreport [flags] <file.csv>")
		fs.PrintDefaults()
	}
	tz := fs.String("tz", cfg.Location.String(), "IANA zone that defines the civil day")
	policyName := fs.String("policy", cfg.Policy.String(), "Leq denominator: count or nominal")
	fillGaps := fs.Bool("fill-gaps", false, "emit N/A rows for dates without samples")
	publish := fs.Bool("publish", false, "publish summaries to LEQ_KAFKA_TOPIC")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(stderr, "leqreport: invalid -tz %q: %v\n", *tz, err)
		return exitUsage
	}
	policy, err := domain.ParsePolicy(*policyName)
	if err != nil {
		fmt.Fprintln(stderr, "leqreport:", err)
		return exitUsage
	}
	if *publish && cfg.KafkaTopic == "" {
		fmt.Fprintln(stderr, "leqreport: -publish requires LEQ_KAFKA_TOPIC")
		return exitUsage
	}

	rows, err := report.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(stderr, inputMessage(err, fs.Arg(0)))
		return exitInput
	}
	if n := len(rows.Skipped); n > 0 {
		fmt.Fprintf(stderr, "leqreport: skipped %d invalid rows, first %v\n", n, rows.Skipped[0])
	}

	summaries := domain.Aggregate(rows.Readings, domain.AggregateOptions{
		Location: loc,
		Policy:   policy,
		FillGaps: *fillGaps,
	})
	if err := report.WriteTable(stdout, summaries); err != nil {
		fmt.Fprintln(stderr, "leqreport: write report:", err)
		return exitInput
	}

	if *publish {
		pub, closeFn := newPublisher(cfg, policy, stderr)
		defer closeFn() //nolint:errcheck // best-effort close after publish
		if err := pub.Publish(ctx, summaries); err != nil {
			fmt.Fprintln(stderr, "leqreport:", err)
			return exitInput
		}
	}
	return exitOK
}

// inputMessage renders a load error for the user.
func inputMessage(err error, path string) string {
	switch {
	case errors.Is(err, report.ErrFileNotFound):
		return "File not found: " + path
	case errors.Is(err, report.ErrEmptyFile):
		return "The CSV file is empty."
	case errors.Is(err, report.ErrMissingColumns):
		return "The CSV file does not have the required columns 'Timestamp' and 'Measure'."
	default:
		return "leqreport: " + err.Error()
	}
}
