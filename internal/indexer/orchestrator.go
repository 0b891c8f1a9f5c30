package indexer

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pictor/internal/catalog"
	"pictor/internal/config"
)

// Orchestrator owns the engine's background activity: the startup full
// index, the periodic watch-drain pass, and the periodic metadata sweep.
// Scheduling goes through cron so passes are skipped rather than stacked
// when a previous run overshoots its interval.
type Orchestrator struct {
	cfg     config.IndexConfig
	store   catalog.Store
	scanner *FolderScanner
	meta    *MetadataScheduler
	watch   *WatchQueue
	refs    *ReferenceCache
	status  *StatusSink
	log     zerolog.Logger

	cron *cron.Cron

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewOrchestrator wires the engine components together under one lifecycle.
func NewOrchestrator(cfg config.IndexConfig, store catalog.Store, scanner *FolderScanner,
	meta *MetadataScheduler, watch *WatchQueue, refs *ReferenceCache,
	status *StatusSink, log zerolog.Logger) *Orchestrator {

	cronLog := log.With().Str("component", "cron").Logger()
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		scanner: scanner,
		meta:    meta,
		watch:   watch,
		refs:    refs,
		status:  status,
		log:     log.With().Str("component", "orchestrator").Logger(),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog)),
			cron.Recover(cron.PrintfLogger(&cronLog)),
		)),
	}
}

// Start launches the background loops. The startup full index runs on its
// own goroutine so Start returns immediately; the watch-drain job is only
// scheduled once that first pass finishes, matching the guarantee that no
// drain pass overlaps the initial walk.
func (o *Orchestrator) Start(ctx context.Context) {
	if !o.cfg.EnableIndexing {
		o.log.Info().Msg("Indexing disabled in configuration; engine not started")
		return
	}

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()

	o.cron.Schedule(cron.Every(o.cfg.MetadataInterval), cron.FuncJob(func() {
		if err := o.RunMetadataPass(runCtx); err != nil && runCtx.Err() == nil {
			o.log.Error().Err(err).Msg("Metadata sweep failed")
		}
	}))
	o.cron.Start()

	go func() {
		defer close(o.done)

		if err := o.refs.Preload(); err != nil {
			o.log.Error().Err(err).Msg("Reference cache preload failed; caches will lazy-load")
		}

		o.status.Set("Full Indexing starting...")
		o.log.Info().Str("root", o.cfg.RootFolder).Msg("Starting full index of folder tree")

		if err := o.scanner.IndexFolder(o.cfg.RootFolder, nil); err != nil {
			o.log.Error().Err(err).Str("root", o.cfg.RootFolder).Msg("Full index pass failed")
		}
		o.status.Set("Full Indexing Complete.")
		o.log.Info().Msg("Full index complete")

		if runCtx.Err() != nil {
			return
		}

		o.cron.Schedule(cron.Every(o.cfg.ScanInterval), cron.FuncJob(func() {
			if err := o.RunWatchDrainPass(); err != nil && runCtx.Err() == nil {
				o.log.Error().Err(err).Msg("Watch drain pass failed")
			}
		}))
	}()
}

// Stop halts the schedulers and waits for in-flight jobs to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-o.cron.Stop().Done()
	if done != nil {
		<-done
	}
	o.log.Info().Msg("Indexing engine stopped")
}

// RunWatchDrainPass takes the folders flagged by filesystem notifications,
// clears their scan dates, and re-indexes everything pending. Folders whose
// scan dates were cleared by other writers get picked up here too.
func (o *Orchestrator) RunWatchDrainPass() error {
	paths := o.watch.DrainPending()
	if len(paths) > 0 {
		cleared, err := o.store.ClearFolderScanDates(paths)
		if err != nil {
			return err
		}
		o.log.Info().Int("queued", len(paths)).Int64("cleared", cleared).
			Msg("Marked changed folders for rescan")
	}

	folders, err := o.store.FoldersPendingScan(o.cfg.FolderBatchSize)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		return nil
	}

	o.status.Set(fmt.Sprintf("Detected %d folders with new/changed images.", len(folders)))

	for i := range folders {
		folder := folders[i]
		if err := o.scanner.IndexFolder(folder.Path, folder.Parent); err != nil {
			o.log.Error().Err(err).Str("path", folder.Path).Msg("Rescan of changed folder failed")
		}
	}
	return nil
}

// RunMetadataPass runs one full metadata sweep over the pending backlog.
func (o *Orchestrator) RunMetadataPass(ctx context.Context) error {
	return o.meta.PerformScan(ctx)
}
