// Package main wires together the pet crawler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	pubsubv2 "cloud.google.com/go/pubsub/v2"

	"github.com/petlife-ingest/pet-crawler/internal/api"
	"github.com/petlife-ingest/pet-crawler/internal/archive"
	"github.com/petlife-ingest/pet-crawler/internal/checkpoint"
	"github.com/petlife-ingest/pet-crawler/internal/clock/system"
	"github.com/petlife-ingest/pet-crawler/internal/config"
	"github.com/petlife-ingest/pet-crawler/internal/crawl"
	"github.com/petlife-ingest/pet-crawler/internal/dispatch"
	collyfetcher "github.com/petlife-ingest/pet-crawler/internal/fetcher/colly"
	"github.com/petlife-ingest/pet-crawler/internal/id/uuid"
	"github.com/petlife-ingest/pet-crawler/internal/logging"
	"github.com/petlife-ingest/pet-crawler/internal/pet"
	queuememory "github.com/petlife-ingest/pet-crawler/internal/queue/memory"
	queuepubsub "github.com/petlife-ingest/pet-crawler/internal/queue/pubsub"
	"github.com/petlife-ingest/pet-crawler/internal/source/petlife"
	"github.com/petlife-ingest/pet-crawler/internal/storage/gcs"
	storagememory "github.com/petlife-ingest/pet-crawler/internal/storage/memory"
	"github.com/petlife-ingest/pet-crawler/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	idGen := uuid.New()

	// The body cap must exceed the archive limit so oversized images are
	// rejected by the archiver instead of being silently truncated.
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		MaxBodySize: max(collyfetcher.DefaultMaxBodySize, int(cfg.Archive.MaxImageBytes)+1),
	})

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	petStore, checkpoints, err := newStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init stores: %w", err)
	}

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}

	adapter, err := petlife.New(petlife.Config{BaseURL: cfg.Source.BaseURL}, fetcher, clock)
	if err != nil {
		return fmt.Errorf("init source adapter: %w", err)
	}

	archiver := archive.New(fetcher, blobs, archive.Config{
		MaxImageBytes: cfg.Archive.MaxImageBytes,
	}, logging.ForComponent(logger, "archive"))

	dispatcher := dispatch.New(publisher, clock, dispatch.Config{
		PendingTopic: cfg.PubSub.PendingTopic,
		DLQTopic:     cfg.PubSub.DLQTopic,
	}, logging.ForComponent(logger, "dispatch"))

	orchestrator := crawl.New(
		adapter,
		checkpoints,
		petStore,
		archiver,
		dispatcher,
		clock,
		idGen,
		crawl.Config{
			MaxPages:         cfg.Crawler.MaxPages,
			RequestDelay:     cfg.RequestDelay(),
			RecentWindow:     cfg.Crawler.RecentWindow,
			KnownStreak:      cfg.Crawler.KnownStreak,
			ListFailureLimit: cfg.Crawler.ListFailureLimit,
		},
		logging.ForComponent(logger, "crawl"),
	)

	apiServer := api.NewServer(
		map[string]api.Crawler{petlife.SourceID: orchestrator},
		checkpoints,
		clock,
		cfg,
		logging.ForComponent(logger, "api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if stopper, ok := publisher.(interface{ Stop() }); ok {
		stopper.Stop()
	}
	logger.Info("shutdown complete")
	return nil
}

func newBlobStore(ctx context.Context, cfg config.Config) (pet.BlobStore, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
	default:
		return storagememory.NewBlobStore(), nil
	}
}

func newStores(ctx context.Context, cfg config.Config) (pet.Store, pet.CheckpointStore, error) {
	if cfg.DB.Provider == "postgres" {
		petStore, err := store.NewPostgresStore(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("pet store: %w", err)
		}
		checkpoints, err := checkpoint.NewPostgresStore(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint store: %w", err)
		}
		return petStore, checkpoints, nil
	}
	return store.NewMemoryStore(), checkpoint.NewMemoryStore(), nil
}

func newPublisher(ctx context.Context, cfg config.Config) (pet.Publisher, error) {
	if cfg.PubSub.Provider == "pubsub" {
		client, err := pubsubv2.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		return queuepubsub.New(client)
	}
	return queuememory.New(), nil
}
