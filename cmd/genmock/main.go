// Command genmock writes synthetic partition CSVs with a day/night noise
// profile, for exercising leqreport and the replica backends without a meter.
// It drives the real partition store with a fake clock so file names, headers
// and rollover match what noisemon produces.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -start 2024-06-01 -days 3 -interval 10s
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	"github.com/couchcryptid/noise-monitor-service/internal/partition"
	"github.com/jonboulle/clockwork"
)

type profile struct {
	day, night, jitter float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output directory for partition files")
	start := flag.String("start", "", "first civil date, YYYY-MM-DD")
	days := flag.Int("days", 1, "number of days to generate")
	interval := flag.Duration("interval", 10*time.Second, "spacing between samples")
	tz := flag.String("tz", domain.ReferenceZone, "zone of the partition dates")
	prefix := flag.String("prefix", "", "partition file name prefix")
	seed := flag.Uint64("seed", 1, "random seed")
	dayLevel := flag.Float64("day-level", 55, "mean daytime level in dB(A)")
	nightLevel := flag.Float64("night-level", 38, "mean night level in dB(A)")
	flag.Parse()

	if *out == "" || *start == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -start")
	}
	if *days < 1 || *interval <= 0 {
		return fmt.Errorf("-days and -interval must be positive")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("invalid -tz: %w", err)
	}
	first, err := time.ParseInLocation(time.DateOnly, *start, loc)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	n, err := generate(*out, *prefix, loc, first, *days, *interval,
		profile{day: *dayLevel, night: *nightLevel, jitter: 3}, rand.New(rand.NewPCG(*seed, *seed)))
	if err != nil {
		return err
	}
	fmt.Printf("wrote %d samples across %d days to %s\n", n, *days, *out)
	return nil
}

// generate appends one reading per interval from first up to first + days
// civil days and returns the number written.
func generate(dir, prefix string, loc *time.Location, first time.Time, days int, interval time.Duration, p profile, rng *rand.Rand) (int, error) {
	clock := clockwork.NewFakeClockAt(first)
	store, err := partition.NewStore(dir, prefix, loc, clock)
	if err != nil {
		return 0, err
	}

	end := first.AddDate(0, 0, days)
	n := 0
	for t := first; t.Before(end); t = t.Add(interval) {
		clock.Advance(t.Sub(clock.Now()))
		mean := p.night
		if domain.IsDaytime(t.In(loc)) {
			mean = p.day
		}
		level := mean + (rng.Float64()*2-1)*p.jitter
		if err := store.Append(domain.Reading{Timestamp: t, ValueDBA: roundTenth(level)}); err != nil {
			store.Close() //nolint:errcheck
			return n, fmt.Errorf("append sample %d: %w", n, err)
		}
		n++
	}
	if err := store.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// roundTenth matches the meter's one-decimal resolution.
func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
