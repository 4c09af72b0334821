package domain

import (
	"encoding/json"
	"time"
)

// Reading is one instantaneous sound-pressure level captured from the meter.
type Reading struct {
	Timestamp time.Time
	ValueDBA  float64
}

// Level is an Leq value that may be absent because its window had no samples.
type Level struct {
	Value float64
	Valid bool
}

// Some returns a present Level.
func Some(v float64) Level { return Level{Value: v, Valid: true} }

// MarshalJSON encodes an absent level as null.
func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(l.Value)
}

// UnmarshalJSON accepts a number or null.
func (l *Level) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Level{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*l = Some(v)
	return nil
}

// DailyLeq summarizes one civil date. Date is local midnight in the zone the
// aggregation ran in.
type DailyLeq struct {
	Date  time.Time
	Day   Level
	Night Level

	DaySamples   int
	NightSamples int
}

// DateString formats the summary date as YYYY-MM-DD.
func (d DailyLeq) DateString() string {
	return d.Date.Format(time.DateOnly)
}
