package partition

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
)

// Errors that make a partition file unreadable as a whole.
var (
	ErrEmpty          = errors.New("the CSV file is empty")
	ErrMissingColumns = fmt.Errorf("the CSV file lacks the required columns %q and %q", ColumnTimestamp, ColumnMeasure)
)

// ErrInvalidRow is wrapped by every RowError.
var ErrInvalidRow = errors.New("invalid row")

// RowError describes one data row that was skipped.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("invalid row at line %d: %s", e.Line, e.Reason)
}

func (e RowError) Unwrap() error { return ErrInvalidRow }

// Rows is the parsed content of a partition file.
type Rows struct {
	Readings []domain.Reading
	Skipped  []RowError
}

// ReadRows parses a partition CSV. The header must name the Timestamp and
// Measure columns; their order is free and extra columns are ignored. Rows
// that cannot be parsed, such as a tail torn by a crash, are skipped and
// listed in Skipped.
func ReadRows(r io.Reader) (Rows, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return Rows{}, ErrEmpty
	}
	if err != nil {
		return Rows{}, fmt.Errorf("read header: %w", err)
	}

	tsCol, valCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnTimestamp:
			tsCol = i
		case ColumnMeasure:
			valCol = i
		}
	}
	if tsCol < 0 || valCol < 0 {
		return Rows{}, ErrMissingColumns
	}

	var out Rows
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				out.Skipped = append(out.Skipped, RowError{Line: pe.Line, Reason: pe.Err.Error()})
				continue
			}
			return Rows{}, fmt.Errorf("read rows: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		reading, reason := parseRow(rec, tsCol, valCol)
		if reason != "" {
			out.Skipped = append(out.Skipped, RowError{Line: line, Reason: reason})
			continue
		}
		out.Readings = append(out.Readings, reading)
	}
	return out, nil
}

func parseRow(rec []string, tsCol, valCol int) (domain.Reading, string) {
	if tsCol >= len(rec) || valCol >= len(rec) {
		return domain.Reading{}, fmt.Sprintf("%d fields", len(rec))
	}
	ts, err := ParseTimestamp(rec[tsCol])
	if err != nil {
		return domain.Reading{}, err.Error()
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(rec[valCol]), 64)
	if err != nil {
		return domain.Reading{}, fmt.Sprintf("measure %q is not numeric", rec[valCol])
	}
	return domain.Reading{Timestamp: ts, ValueDBA: value}, ""
}
