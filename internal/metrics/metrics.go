package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all indexing engine metrics
type Metrics struct {
	// Folder scan metrics
	FoldersScannedTotal prometheus.Counter
	FoldersDeletedTotal prometheus.Counter
	FolderScanFailures  prometheus.Counter

	// Image diff metrics
	ImagesAddedTotal   prometheus.Counter
	ImagesUpdatedTotal prometheus.Counter
	ImagesRemovedTotal prometheus.Counter

	// Metadata scan metrics
	MetadataScansTotal   *prometheus.CounterVec
	MetadataScanDuration prometheus.Histogram

	// Watch queue metrics
	WatchEventsTotal  *prometheus.CounterVec
	WatchErrorsTotal  prometheus.Counter
	PendingQueueDepth prometheus.Gauge
}

// New creates a Metrics instance registered against the given registerer.
// Tests pass their own registry so repeated construction doesn't collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FoldersScannedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_folders_scanned_total",
				Help: "Total number of folder scan passes completed",
			},
		),
		FoldersDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_folders_deleted_total",
				Help: "Total number of folders removed from the catalog",
			},
		),
		FolderScanFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_folder_scan_failures_total",
				Help: "Total number of folder scan passes that failed",
			},
		),

		ImagesAddedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_images_added_total",
				Help: "Total number of images added to the catalog",
			},
		),
		ImagesUpdatedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_images_updated_total",
				Help: "Total number of catalog images refreshed from disk",
			},
		),
		ImagesRemovedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_images_removed_total",
				Help: "Total number of images removed from the catalog",
			},
		),

		MetadataScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pictor_metadata_scans_total",
				Help: "Total number of per-image metadata extractions",
			},
			[]string{"status"},
		),
		MetadataScanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "pictor_metadata_batch_duration_seconds",
				Help: "Duration of metadata scan batches in seconds",
			},
		),

		WatchEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pictor_watch_events_total",
				Help: "Total filesystem change notifications observed",
			},
			[]string{"outcome"},
		),
		WatchErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pictor_watch_errors_total",
				Help: "Total filesystem watch provider errors",
			},
		),
		PendingQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pictor_pending_rescan_folders",
				Help: "Folders currently queued for rescan",
			},
		),
	}
}
