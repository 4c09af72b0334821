// Package report loads persisted partition CSVs for the Leq aggregator and
// renders its daily summaries.
package report

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/couchcryptid/noise-monitor-service/internal/partition"
)

// Input errors. Each ends a report run with its own message.
var (
	ErrFileNotFound   = errors.New("file not found")
	ErrEmptyFile      = partition.ErrEmpty
	ErrMissingColumns = partition.ErrMissingColumns
)

// LoadFile reads all readings from a partition CSV at path.
func LoadFile(path string) (partition.Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return partition.Rows{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return partition.Rows{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads readings from a partition CSV. Unparseable rows are skipped and
// reported in the result.
func Load(r io.Reader) (partition.Rows, error) {
	return partition.ReadRows(r)
}
