package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// ReferenceZone is the civil time zone Leq windows are evaluated in.
const ReferenceZone = "Europe/Rome"

// Nominal window lengths in seconds.
const (
	DayWindowSeconds   = 16 * 60 * 60
	NightWindowSeconds = 8 * 60 * 60
)

const (
	dayStartHour = 6
	dayEndHour   = 22
)

// DenominatorPolicy selects N in the Leq formula.
type DenominatorPolicy int

const (
	// PolicySampleCount divides by the number of samples in the window.
	PolicySampleCount DenominatorPolicy = iota
	// PolicyNominalDuration divides by the window length in seconds.
	PolicyNominalDuration
)

func (p DenominatorPolicy) String() string {
	switch p {
	case PolicySampleCount:
		return "count"
	case PolicyNominalDuration:
		return "nominal"
	default:
		return fmt.Sprintf("DenominatorPolicy(%d)", int(p))
	}
}

// ParsePolicy accepts "count" or "nominal".
func ParsePolicy(s string) (DenominatorPolicy, error) {
	switch s {
	case "count", "":
		return PolicySampleCount, nil
	case "nominal":
		return PolicyNominalDuration, nil
	default:
		return 0, fmt.Errorf("unknown Leq policy %q (want count or nominal)", s)
	}
}

// AggregateOptions controls Aggregate. A nil Location means UTC.
type AggregateOptions struct {
	Location *time.Location
	Policy   DenominatorPolicy
	// FillGaps emits an all-absent summary for every date between the first
	// and last date that has samples.
	FillGaps bool
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func (d civilDate) next() civilDate {
	t := time.Date(d.year, d.month, d.day+1, 0, 0, 0, 0, time.UTC)
	return civilDate{t.Year(), t.Month(), t.Day()}
}

func (d civilDate) before(o civilDate) bool {
	if d.year != o.year {
		return d.year < o.year
	}
	if d.month != o.month {
		return d.month < o.month
	}
	return d.day < o.day
}

type windowSum struct {
	energy float64
	count  int
}

func (w *windowSum) add(level float64) {
	w.energy += math.Pow(10, level/10)
	w.count++
}

func (w windowSum) leq(policy DenominatorPolicy, nominalSeconds float64) Level {
	if w.count == 0 {
		return Level{}
	}
	n := float64(w.count)
	if policy == PolicyNominalDuration {
		n = nominalSeconds
	}
	return Some(10 * math.Log10(w.energy/n))
}

type dayAccumulator struct {
	day   windowSum
	night windowSum
}

// IsDaytime reports whether a local wall-clock time falls in the day window.
func IsDaytime(local time.Time) bool {
	h := local.Hour()
	return h >= dayStartHour && h < dayEndHour
}

// Aggregate computes one DailyLeq per civil date present in rows, in date
// order. The input order does not matter and rows are not modified.
func Aggregate(rows []Reading, opts AggregateOptions) []DailyLeq {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	acc := make(map[civilDate]*dayAccumulator)
	for _, r := range rows {
		local := r.Timestamp.In(loc)
		key := civilDate{local.Year(), local.Month(), local.Day()}
		a, ok := acc[key]
		if !ok {
			a = &dayAccumulator{}
			acc[key] = a
		}
		if IsDaytime(local) {
			a.day.add(r.ValueDBA)
		} else {
			a.night.add(r.ValueDBA)
		}
	}
	if len(acc) == 0 {
		return nil
	}

	dates := make([]civilDate, 0, len(acc))
	for d := range acc {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].before(dates[j]) })

	if opts.FillGaps {
		filled := make([]civilDate, 0, len(dates))
		for d := dates[0]; !dates[len(dates)-1].before(d); d = d.next() {
			filled = append(filled, d)
		}
		dates = filled
	}

	out := make([]DailyLeq, 0, len(dates))
	for _, d := range dates {
		summary := DailyLeq{Date: time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)}
		if a, ok := acc[d]; ok {
			summary.Day = a.day.leq(opts.Policy, DayWindowSeconds)
			summary.Night = a.night.leq(opts.Policy, NightWindowSeconds)
			summary.DaySamples = a.day.count
			summary.NightSamples = a.night.count
		}
		out = append(out, summary)
	}
	return out
}
