// Package replication copies the current partition file to a remote blob
// store on a fixed period. Each cycle uploads the whole file and overwrites
// the previous replica; no row-level sync state is kept.
package replication

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/couchcryptid/noise-monitor-service/internal/observability"
	"github.com/couchcryptid/noise-monitor-service/internal/partition"
	"github.com/couchcryptid/noise-monitor-service/internal/retry"
	"github.com/jonboulle/clockwork"
)

// BlobStore is the remote replica backend. Ids are backend specific.
type BlobStore interface {
	// List returns the ids of blobs called name under parent.
	List(ctx context.Context, parent, name string) ([]string, error)
	Create(ctx context.Context, parent, name string, content []byte) (string, error)
	Update(ctx context.Context, id string, content []byte) error
}

// Source exposes the partition being appended to.
type Source interface {
	Current() (partition.Partition, bool)
	Flush() error
}

const (
	opCreate = "create"
	opUpdate = "update"
	opSkip   = "skip"
)

// Options configures a Syncer.
type Options struct {
	Parent   string
	Interval time.Duration
	Clock    clockwork.Clock
}

// Syncer is the periodic sync task.
type Syncer struct {
	source  Source
	blobs   BlobStore
	opts    Options
	clock   clockwork.Clock
	policy  retry.Fixed
	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	last partition.Partition
	// stale holds partitions that rolled over and still need their final upload.
	stale []partition.Partition
}

// New creates a Syncer.
func New(source Source, blobs BlobStore, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Syncer {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Syncer{
		source:  source,
		blobs:   blobs,
		opts:    opts,
		clock:   clock,
		policy:  retry.NewFixed(opts.Interval, clock),
		logger:  logger,
		metrics: metrics,
	}
}

// Run syncs immediately and then once per interval until ctx is cancelled.
// Failures are logged and retried on the next cycle.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("sync started", "interval", s.opts.Interval, "parent", s.opts.Parent)
	for {
		if err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("sync failed, retrying next cycle", "error", err, "retry_in", s.opts.Interval)
		}
		if !s.policy.Wait(ctx) {
			s.logger.Info("sync stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// SyncOnce uploads the current partition, after any partitions that rolled
// over since the previous cycle.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.source.Current()
	if !ok {
		s.metrics.SyncCycles.WithLabelValues(opSkip, "success").Inc()
		s.logger.Debug("sync skipped, no partition yet")
		return nil
	}
	if s.last.Name != "" && s.last.Name != current.Name {
		s.stale = append(s.stale, s.last)
	}
	s.last = current

	if err := s.source.Flush(); err != nil {
		// The OS already has every appended row; upload what is readable.
		s.logger.Warn("flush before sync failed", "error", err, "partition", current.Name)
	}

	var errs []error
	remaining := s.stale[:0]
	for _, p := range s.stale {
		if err := s.upload(ctx, p, false); err != nil {
			errs = append(errs, err)
			remaining = append(remaining, p)
		}
	}
	s.stale = remaining

	if err := s.upload(ctx, current, true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// upload replaces the replica of p with the file's complete rows. The size
// and duration metrics track the current partition only.
func (s *Syncer) upload(ctx context.Context, p partition.Partition, current bool) error {
	start := s.clock.Now()

	content, err := readRows(p.Path)
	if err != nil {
		s.metrics.SyncCycles.WithLabelValues(opSkip, "error").Inc()
		return fmt.Errorf("read partition %s: %w", p.Name, err)
	}

	ids, err := s.blobs.List(ctx, s.opts.Parent, p.Name)
	if err != nil {
		s.metrics.SyncCycles.WithLabelValues(opSkip, "error").Inc()
		return fmt.Errorf("look up replica %s: %w", p.Name, err)
	}

	op := opCreate
	var id string
	if len(ids) > 0 {
		op = opUpdate
		id = ids[0]
		err = s.blobs.Update(ctx, id, content)
	} else {
		id, err = s.blobs.Create(ctx, s.opts.Parent, p.Name, content)
	}
	if err != nil {
		s.metrics.SyncCycles.WithLabelValues(op, "error").Inc()
		return fmt.Errorf("%s replica %s: %w", op, p.Name, err)
	}

	s.metrics.SyncCycles.WithLabelValues(op, "success").Inc()
	if current {
		s.metrics.SyncDuration.Observe(s.clock.Since(start).Seconds())
		s.metrics.SyncBytes.Set(float64(len(content)))
	}
	s.logger.Info("partition synced",
		"partition", p.Name,
		"op", op,
		"id", id,
		"bytes", len(content),
		"current", current,
	)
	return nil
}

// readRows reads the file up to its last complete line so a row being
// appended concurrently is never uploaded half written.
func readRows(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if i := bytes.LastIndexByte(content, '\n'); i >= 0 {
		return content[:i+1], nil
	}
	return content[:0], nil
}
