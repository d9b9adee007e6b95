// Package crawl implements the differential crawl run: checkpoint load,
// page/item loop, persistence, image archiving, queue dispatch and
// checkpoint save.
package crawl

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/petlife-ingest/pet-crawler/internal/metrics"
	"github.com/petlife-ingest/pet-crawler/internal/pet"
	"github.com/petlife-ingest/pet-crawler/internal/retry"
)

// SourceAdapter is the per-site capability set the orchestrator runs
// against. One adapter instance serves one source site.
type SourceAdapter interface {
	SourceID() string
	ListPageURL(petType pet.Type, page int) string
	FetchPage(ctx context.Context, url string) ([]byte, error)
	ParseListPage(html []byte) ([]pet.ListItem, error)
	ParseDetailPage(html []byte) (pet.DetailFields, error)
	Normalize(item pet.ListItem, fields pet.DetailFields, petType pet.Type) (pet.Pet, error)
}

// Archiver stores an item's image artifacts.
type Archiver interface {
	Archive(ctx context.Context, p pet.Pet) (pet.ArchiveResult, error)
}

// Dispatcher forwards newly-ingested ids downstream.
type Dispatcher interface {
	EnqueuePending(ctx context.Context, batchID string, petType pet.Type, source string, pendingIDs []string) (int, []string)
}

// Config bounds a crawl run.
type Config struct {
	// MaxPages caps the number of list pages visited per run.
	MaxPages int
	// RequestDelay is awaited between successive HTTP fetches.
	RequestDelay time.Duration
	// RecentWindow bounds the checkpoint's recent-id set.
	RecentWindow int
	// KnownStreak is the number of consecutive already-seen items that
	// ends a differential run.
	KnownStreak int
	// ListFailureLimit aborts the run after this many consecutive
	// list-page failures.
	ListFailureLimit int
}

func (c Config) withDefaults() Config {
	if c.MaxPages <= 0 {
		c.MaxPages = 10
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = 50
	}
	if c.KnownStreak <= 0 {
		c.KnownStreak = 3
	}
	if c.ListFailureLimit <= 0 {
		c.ListFailureLimit = 3
	}
	return c
}

// Options select per-run behavior.
type Options struct {
	// Limit caps items processed this run; zero means no item cap.
	Limit int
	// Differential stops the run once a streak of already-seen items is
	// rediscovered instead of scanning every page.
	Differential bool
}

// Orchestrator drives crawl runs for one source. Runs for distinct
// (source, type) keys may proceed concurrently; a second run for a key
// already in flight is rejected with pet.ErrCrawlInProgress since
// checkpoint writes are last-writer-wins.
type Orchestrator struct {
	adapter     SourceAdapter
	checkpoints pet.CheckpointStore
	store       pet.Store
	archiver    Archiver
	dispatcher  Dispatcher
	clock       pet.Clock
	ids         pet.IDGenerator
	cfg         Config
	logger      *zap.Logger

	active *keyRegistry
}

// New constructs an Orchestrator.
func New(
	adapter SourceAdapter,
	checkpoints pet.CheckpointStore,
	store pet.Store,
	archiver Archiver,
	dispatcher Dispatcher,
	clock pet.Clock,
	ids pet.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		adapter:     adapter,
		checkpoints: checkpoints,
		store:       store,
		archiver:    archiver,
		dispatcher:  dispatcher,
		clock:       clock,
		ids:         ids,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		active:      newKeyRegistry(),
	}
}

// Crawl executes one run for the pet type and returns its result. The
// result's Success field reflects an empty error list; partial failures do
// not produce a non-nil error. A run already in flight for the same
// (source, type) key returns pet.ErrCrawlInProgress.
func (o *Orchestrator) Crawl(ctx context.Context, petType pet.Type, opts Options) (pet.CrawlResult, error) {
	source := o.adapter.SourceID()
	key := source + "/" + string(petType)
	if !o.active.acquire(key) {
		return pet.CrawlResult{}, fmt.Errorf("crawl %s: %w", key, pet.ErrCrawlInProgress)
	}
	defer o.active.release(key)

	metrics.IncActiveCrawls()
	defer metrics.DecActiveCrawls()

	batchID, err := o.ids.NewID()
	if err != nil {
		return pet.CrawlResult{}, fmt.Errorf("generate batch id: %w", err)
	}

	r := &run{
		o:       o,
		petType: petType,
		opts:    opts,
		batchID: batchID,
		logger: o.logger.With(
			zap.String("source", source),
			zap.String("pet_type", string(petType)),
			zap.String("batch_id", batchID),
		),
	}
	r.execute(ctx)

	r.result.Finalize()
	status := "success"
	switch {
	case r.aborted:
		status = "aborted"
	case !r.result.Success:
		status = "partial"
	}
	metrics.ObserveRun(source, string(petType), status)
	r.logger.Info("crawl run finished",
		zap.String("status", status),
		zap.Int("total_items", r.result.TotalItems),
		zap.Int("new_items", r.result.NewItems),
		zap.Int("updated_items", r.result.UpdatedItems),
		zap.Int("error_count", len(r.result.Errors)),
	)
	return r.result, nil
}

// run holds the mutable state of one crawl execution.
type run struct {
	o       *Orchestrator
	petType pet.Type
	opts    Options
	batchID string
	logger  *zap.Logger

	result       pet.CrawlResult
	checkpoint   *pet.Checkpoint
	cpLoadFailed bool
	processedIDs []string
	pendingIDs   []string
	aborted      bool
	stop         bool
	fetched      bool
}

func (r *run) execute(ctx context.Context) {
	o := r.o
	source := o.adapter.SourceID()

	cp, err := retry.DoValue(ctx, retry.StorageConfig(), func(ctx context.Context) (*pet.Checkpoint, error) {
		return o.checkpoints.Get(ctx, source, r.petType)
	})
	if err != nil {
		r.cpLoadFailed = true
		r.fail(fmt.Sprintf("load checkpoint: %v", err))
		r.logger.Warn("checkpoint unavailable, running full scan", zap.Error(err))
	}
	r.checkpoint = cp

	consecutiveKnown := 0
	listFailures := 0

	for page := 1; page <= o.cfg.MaxPages && !r.stop; page++ {
		url := o.adapter.ListPageURL(r.petType, page)
		body, err := r.fetch(ctx, url)
		if err != nil {
			listFailures++
			metrics.ObservePage(source, "error")
			r.fail(fmt.Sprintf("list page %d: %v", page, err))
			if listFailures >= o.cfg.ListFailureLimit {
				r.aborted = true
				r.logger.Error("aborting run after consecutive list page failures",
					zap.Int("failures", listFailures))
				break
			}
			continue
		}
		listFailures = 0
		metrics.ObservePage(source, "ok")

		items, err := o.adapter.ParseListPage(body)
		if err != nil {
			r.fail(fmt.Sprintf("parse list page %d: %v", page, err))
			continue
		}
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if r.opts.Differential && r.checkpoint.Seen(item.NativeID) {
				consecutiveKnown++
				metrics.ObserveItem(source, "skipped")
				if consecutiveKnown >= o.cfg.KnownStreak {
					r.logger.Info("differential overlap reached, stopping",
						zap.Int("streak", consecutiveKnown),
						zap.Int("page", page))
					r.stop = true
					break
				}
				continue
			}
			consecutiveKnown = 0

			r.processItem(ctx, item)
			if r.opts.Limit > 0 && r.result.TotalItems >= r.opts.Limit {
				r.stop = true
				break
			}
		}
	}

	sent, dispatchErrs := o.dispatcher.EnqueuePending(ctx, r.batchID, r.petType, source, r.pendingIDs)
	for _, e := range dispatchErrs {
		r.fail(e)
	}

	r.saveCheckpoint(ctx, sent)
}

// processItem runs one item through fetch, parse, normalize, persist and
// archive. Failures are recorded and never abort the page.
func (r *run) processItem(ctx context.Context, item pet.ListItem) {
	o := r.o
	source := o.adapter.SourceID()

	body, err := r.fetch(ctx, item.URL)
	if err != nil {
		r.itemError(item.NativeID, "fetch detail", err)
		return
	}

	fields, err := o.adapter.ParseDetailPage(body)
	if err != nil {
		r.itemError(item.NativeID, "parse detail", err)
		return
	}

	p, err := o.adapter.Normalize(item, fields, r.petType)
	if err != nil {
		r.itemError(item.NativeID, "normalize", err)
		return
	}

	created, err := retry.DoValue(ctx, retry.StorageConfig(), func(ctx context.Context) (bool, error) {
		return o.store.Upsert(ctx, p)
	})
	if err != nil {
		r.itemError(item.NativeID, "persist", &pet.PersistenceError{ID: p.ID, Err: err})
		return
	}

	r.result.TotalItems++
	r.processedIDs = append(r.processedIDs, item.NativeID)
	if created {
		r.result.NewItems++
		r.pendingIDs = append(r.pendingIDs, p.ID)
		metrics.ObserveItem(source, "new")
	} else {
		r.result.UpdatedItems++
		metrics.ObserveItem(source, "updated")
	}

	// The record is already stored; a failed image archive is reported
	// but does not undo the item.
	if _, err := o.archiver.Archive(ctx, p); err != nil {
		r.fail(fmt.Sprintf("item %s: archive image: %v", item.NativeID, err))
	}
}

// saveCheckpoint persists run progress. A run that processed nothing and
// aborted leaves the previous checkpoint untouched, as does a run that
// could not read the previous checkpoint: writing one rebuilt from
// scratch would roll back TotalProcessed and the recent-id window.
func (r *run) saveCheckpoint(ctx context.Context, sent int) {
	if r.cpLoadFailed {
		r.logger.Warn("skipping checkpoint save after failed load")
		return
	}
	if r.aborted && r.result.TotalItems == 0 {
		return
	}

	o := r.o
	prev := r.checkpoint
	next := pet.Checkpoint{
		SourceID:    o.adapter.SourceID(),
		PetType:     r.petType,
		LastCrawlAt: o.clock.Now(),
		Metadata:    map[string]string{},
	}
	if prev != nil {
		next.LastItemID = prev.LastItemID
		next.TotalProcessed = prev.TotalProcessed
		for k, v := range prev.Metadata {
			next.Metadata[k] = v
		}
	}
	if len(r.processedIDs) > 0 {
		// List pages are newest-first, so the first processed id of the
		// run becomes the resumption marker.
		next.LastItemID = r.processedIDs[0]
	}
	next.TotalProcessed += int64(r.result.TotalItems)
	next.RecentItemIDs = mergeRecent(r.processedIDs, prev, o.cfg.RecentWindow)
	next.Metadata["batchId"] = r.batchID
	next.Metadata["screenshotQueue.sent"] = strconv.Itoa(sent)
	next.Metadata["screenshotQueue.pending"] = strconv.Itoa(len(r.pendingIDs) - sent)

	err := retry.Do(ctx, retry.StorageConfig(), func(ctx context.Context) error {
		return o.checkpoints.Put(ctx, next)
	})
	if err != nil {
		r.fail(fmt.Sprintf("save checkpoint: %v", err))
	}
}

// fetch wraps the adapter fetch with the HTTP retry policy and the
// inter-request delay.
func (r *run) fetch(ctx context.Context, url string) ([]byte, error) {
	if r.fetched {
		r.pause(ctx)
	}
	r.fetched = true
	return retry.DoValue(ctx, retry.HTTPConfig(), func(ctx context.Context) ([]byte, error) {
		return r.o.adapter.FetchPage(ctx, url)
	})
}

func (r *run) pause(ctx context.Context) {
	if r.o.cfg.RequestDelay <= 0 {
		return
	}
	t := time.NewTimer(r.o.cfg.RequestDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *run) fail(msg string) {
	r.result.Errors = append(r.result.Errors, msg)
}

func (r *run) itemError(nativeID, stage string, err error) {
	metrics.ObserveItem(r.o.adapter.SourceID(), "error")
	r.logger.Warn("item failed",
		zap.String("native_id", nativeID),
		zap.String("stage", stage),
		zap.Error(err),
	)
	r.fail(fmt.Sprintf("item %s: %s: %v", nativeID, stage, err))
}

// mergeRecent combines this run's ids with the previous window, newest
// first, deduplicated and truncated.
func mergeRecent(processed []string, prev *pet.Checkpoint, window int) []string {
	merged := make([]string, 0, window)
	seen := make(map[string]struct{}, window)
	appendID := func(id string) {
		if len(merged) >= window {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	for _, id := range processed {
		appendID(id)
	}
	if prev != nil {
		if prev.LastItemID != "" {
			appendID(prev.LastItemID)
		}
		for _, id := range prev.RecentItemIDs {
			appendID(id)
		}
	}
	return merged
}
