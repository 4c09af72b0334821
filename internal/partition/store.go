// Package partition stores readings in one append-only CSV file per
// wall-clock day.
package partition

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/noise-monitor-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Column names of the partition header row.
const (
	ColumnTimestamp = "Timestamp"
	ColumnMeasure   = "Measure"
)

// TimestampLayout is the row timestamp format: RFC 3339 with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const fileDateLayout = "20060102"

// Partition identifies one day's file.
type Partition struct {
	Name string
	Path string
}

// FileName returns the partition file name for the date of day.
func FileName(prefix string, day time.Time) string {
	return prefix + day.Format(fileDateLayout) + ".csv"
}

// Store appends readings to the partition of the current wall-clock date.
// The date comes from the store's clock at append time, never from the
// reading, so one physical day always maps to one file.
type Store struct {
	dir    string
	prefix string
	loc    *time.Location
	clock  clockwork.Clock

	mu      sync.Mutex
	current Partition
	file    *os.File
	writer  *csv.Writer
}

// NewStore creates the partition directory if needed. A nil loc uses time.Local.
func NewStore(dir, prefix string, loc *time.Location, clock clockwork.Clock) (*Store, error) {
	if loc == nil {
		loc = time.Local
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}
	return &Store{dir: dir, prefix: prefix, loc: loc, clock: clock}, nil
}

// Append writes one row to today's partition, rotating files on a date change.
func (s *Store) Append(r domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := FileName(s.prefix, s.clock.Now().In(s.loc))
	if s.file == nil || name != s.current.Name {
		if err := s.rotate(name); err != nil {
			return err
		}
	}

	if err := s.writer.Write(Record(r)); err != nil {
		return fmt.Errorf("write row to %s: %w", s.current.Name, err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("write row to %s: %w", s.current.Name, err)
	}
	return nil
}

// rotate closes the active file and opens name for appending, writing the
// header when the file is new or empty. A row left half-written by a crash
// is cut off first.
func (s *Store) rotate(name string) error {
	if err := s.closeActive(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open partition %s: %w", name, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat partition %s: %w", name, err)
	}

	size, err := truncateTornTail(f, stat.Size())
	if err != nil {
		f.Close()
		return fmt.Errorf("repair partition %s: %w", name, err)
	}

	w := csv.NewWriter(f)
	if size == 0 {
		if err := w.Write([]string{ColumnTimestamp, ColumnMeasure}); err != nil {
			f.Close()
			return fmt.Errorf("write header to %s: %w", name, err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return fmt.Errorf("write header to %s: %w", name, err)
		}
	}

	s.file = f
	s.writer = w
	s.current = Partition{Name: name, Path: path}
	return nil
}

const tailChunk = 4096

// truncateTornTail cuts f back to just after its last newline and returns
// the new size. A file without any newline is emptied.
func truncateTornTail(f *os.File, size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	buf := make([]byte, tailChunk)
	end := size
	for end > 0 {
		start := max(end-tailChunk, 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return size, nil
			}
			return keep, f.Truncate(keep)
		}
		end = start
	}
	return 0, f.Truncate(0)
}

func (s *Store) closeActive() error {
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	werr := s.writer.Error()
	serr := s.file.Sync()
	cerr := s.file.Close()
	s.file = nil
	s.writer = nil
	for _, err := range []error{werr, serr, cerr} {
		if err != nil {
			return fmt.Errorf("close partition %s: %w", s.current.Name, err)
		}
	}
	return nil
}

// Current returns the partition of the most recent append.
func (s *Store) Current() (Partition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current.Name != ""
}

// Flush syncs the active partition to stable storage.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush partition %s: %w", s.current.Name, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync partition %s: %w", s.current.Name, err)
	}
	return nil
}

// Close flushes and releases the active partition.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeActive()
}

// Record formats a reading as a partition row.
func Record(r domain.Reading) []string {
	return []string{
		r.Timestamp.Format(TimestampLayout),
		strconv.FormatFloat(r.ValueDBA, 'f', -1, 64),
	}
}
