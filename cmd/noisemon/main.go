package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/noise-monitor-service/internal/acquisition"
	"github.com/couchcryptid/noise-monitor-service/internal/adapter/ble"
	"github.com/couchcryptid/noise-monitor-service/internal/adapter/drive"
	httpadapter "github.com/couchcryptid/noise-monitor-service/internal/adapter/http"
	"github.com/couchcryptid/noise-monitor-service/internal/adapter/localdir"
	s3adapter "github.com/couchcryptid/noise-monitor-service/internal/adapter/s3"
	"github.com/couchcryptid/noise-monitor-service/internal/config"
	"github.com/couchcryptid/noise-monitor-service/internal/observability"
	"github.com/couchcryptid/noise-monitor-service/internal/partition"
	"github.com/couchcryptid/noise-monitor-service/internal/replication"
	"github.com/couchcryptid/noise-monitor-service/internal/retry"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

const finalSyncRetry = time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := partition.NewStore(cfg.CSVDir, cfg.CSVFilePrefix, cfg.PartitionTZ, clock)
	if err != nil {
		logger.Error("failed to open partition store", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Clients outlive ctx so the final sync can still refresh credentials.
	blobs, err := newBlobStore(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize replica backend", "backend", cfg.ReplicaBackend, "error", err)
		os.Exit(1)
	}

	loop := acquisition.New(ble.New(logger), store, acquisition.Options{
		Address:              cfg.DeviceAddress,
		WriteCharacteristic:  cfg.WriteCharacteristic,
		NotifyCharacteristic: cfg.NotifyCharacteristic,
		SampleInterval:       cfg.SampleInterval,
		ReplyTimeout:         cfg.ReplyTimeout,
		ReconnectInterval:    cfg.ReconnectInterval,
		Clock:                clock,
	}, logger, metrics)

	var syncer *replication.Syncer
	if blobs != nil {
		syncer = replication.New(store, blobs, replication.Options{
			Parent:   cfg.ReplicaParent(),
			Interval: cfg.SyncInterval,
			Clock:    clock,
		}, logger, metrics)
	} else {
		logger.Info("replication disabled")
	}

	status := func() httpadapter.Status {
		st := httpadapter.Status{State: loop.State().String()}
		if p, ok := store.Current(); ok {
			st.Partition = p.Name
		}
		return st
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, loop, status, metrics.Gatherer, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil {
			logger.Error("acquisition error", "error", err)
		}
	}()
	if syncer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := syncer.Run(ctx); err != nil {
				logger.Error("sync error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if syncer != nil {
		// Retry the last upload until it lands or the shutdown budget runs out.
		final := retry.NewFixed(finalSyncRetry, clock)
		err := final.Forever(shutdownCtx, syncer.SyncOnce, func(n int, err error) {
			logger.Warn("final sync attempt failed", "attempt", n, "error", err)
		})
		if err != nil {
			logger.Error("final sync abandoned", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("partition store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newBlobStore returns nil when replication is disabled.
func newBlobStore(ctx context.Context, cfg *config.Config) (replication.BlobStore, error) {
	switch cfg.ReplicaBackend {
	case config.BackendDrive:
		return drive.New(ctx, cfg.CredentialsPath, cfg.DriveScope)
	case config.BackendS3:
		return s3adapter.New(ctx, cfg.S3Bucket, cfg.S3Endpoint)
	case config.BackendDir:
		return localdir.New(cfg.ReplicaDir)
	case config.BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown replica backend %q", cfg.ReplicaBackend)
	}
}
