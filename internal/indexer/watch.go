package indexer

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"pictor/internal/exif"
	"pictor/internal/metrics"
)

// WatchQueue listens for OS filesystem change notifications on watched
// folders and conflates them into a deduplicated set of folder paths
// pending rescan. The listener side must stay cheap: events only touch the
// in-memory pending set, never the disk or the catalog, so the queue keeps
// up with notification bursts.
type WatchQueue struct {
	watcher *fsnotify.Watcher
	metrics *metrics.Metrics
	log     zerolog.Logger

	// maxErrors stops the listener after that many provider errors;
	// 0 keeps listening regardless. Nothing re-subscribes automatically
	// either way; the next full scan re-establishes watches.
	maxErrors int

	mu         sync.Mutex
	watched    map[string]bool
	pending    map[string]bool
	errorCount int

	done chan struct{}
}

// NewWatchQueue creates the watch queue and starts its listener goroutine.
func NewWatchQueue(maxErrors int, m *metrics.Metrics, log zerolog.Logger) (*WatchQueue, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	q := &WatchQueue{
		watcher:   watcher,
		metrics:   m,
		log:       log.With().Str("component", "watch").Logger(),
		maxErrors: maxErrors,
		watched:   make(map[string]bool),
		pending:   make(map[string]bool),
		done:      make(chan struct{}),
	}

	go q.listen()
	return q, nil
}

// Watch registers a folder for change notifications. Idempotent: a folder
// already being watched is left alone.
func (q *WatchQueue) Watch(path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.watched[path] {
		return nil
	}

	q.log.Debug().Str("path", path).Msg("Creating folder watch")
	if err := q.watcher.Add(path); err != nil {
		return err
	}
	q.watched[path] = true
	return nil
}

// Unwatch removes a folder's watch registration. Idempotent; a folder that
// was never watched is a no-op.
func (q *WatchQueue) Unwatch(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.watched[path] {
		return
	}

	q.log.Debug().Str("path", path).Msg("Removing folder watch")
	delete(q.watched, path)

	// Remove fails when the directory is already gone; the watch died
	// with it.
	if err := q.watcher.Remove(path); err != nil {
		q.log.Debug().Str("path", path).Err(err).Msg("Watch removal")
	}
}

// DrainPending returns and clears the current pending-rescan folder set.
func (q *WatchQueue) DrainPending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	paths := make([]string, 0, len(q.pending))
	for path := range q.pending {
		paths = append(paths, path)
	}
	q.pending = make(map[string]bool)

	if q.metrics != nil {
		q.metrics.PendingQueueDepth.Set(0)
	}
	return paths
}

// Close stops the listener and releases the underlying watcher.
func (q *WatchQueue) Close() error {
	err := q.watcher.Close()
	<-q.done
	return err
}

func (q *WatchQueue) listen() {
	defer close(q.done)

	for {
		select {
		case event, ok := <-q.watcher.Events:
			if !ok {
				return
			}
			q.handleEvent(event)

		case err, ok := <-q.watcher.Errors:
			if !ok {
				return
			}
			if q.handleError(err) {
				return
			}
		}
	}
}

// handleEvent conflates one notification into the pending set. Rename
// events arrive as separate notifications for the old and new paths, so
// both containing folders end up queued.
func (q *WatchQueue) handleEvent(event fsnotify.Event) {
	q.log.Trace().Str("path", event.Name).Str("op", event.Op.String()).Msg("Watch event")

	folder := filepath.Dir(event.Name)

	// Hidden entries and entries inside hidden directories never flag
	// a rescan.
	if isHidden(filepath.Base(event.Name)) || isHidden(filepath.Base(folder)) {
		q.count("ignored")
		return
	}

	// The listener must not stat the path (it may already be gone, and
	// disk access here would stall the notification thread). Entries
	// with no extension are taken to be directories; everything else
	// must look like a supported image file. Create events pass through
	// regardless, since a new directory can carry a dot in its name and
	// the drain pass sorts out the spurious ones.
	if filepath.Ext(event.Name) != "" && !exif.IsImageFile(event.Name) &&
		!event.Op.Has(fsnotify.Create) {
		q.count("ignored")
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending[folder] {
		q.count("conflated")
		return
	}

	q.log.Debug().Str("folder", folder).Str("op", event.Op.String()).Msg("Queueing folder for rescan")
	q.pending[folder] = true
	q.count("queued")

	if q.metrics != nil {
		q.metrics.PendingQueueDepth.Set(float64(len(q.pending)))
	}
}

// handleError logs a watch provider error and reports whether the listener
// should stop because the configured error budget is exhausted.
func (q *WatchQueue) handleError(err error) bool {
	q.mu.Lock()
	q.errorCount++
	count := q.errorCount
	q.mu.Unlock()

	q.log.Error().Err(err).Int("count", count).Msg("Watch provider error")
	if q.metrics != nil {
		q.metrics.WatchErrorsTotal.Inc()
	}

	if q.maxErrors > 0 && count >= q.maxErrors {
		q.log.Error().Int("max", q.maxErrors).
			Msg("Watch error budget exhausted; stopping filesystem listener")
		return true
	}
	return false
}

func (q *WatchQueue) count(outcome string) {
	if q.metrics != nil {
		q.metrics.WatchEventsTotal.WithLabelValues(outcome).Inc()
	}
}
