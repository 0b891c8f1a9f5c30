package indexer

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"pictor/internal/catalog"
	"pictor/internal/exif"
	"pictor/internal/metrics"
	"pictor/internal/models"
)

// MetadataScheduler sweeps the catalog for images lacking current metadata
// and drives extraction in bounded batches until none remain.
type MetadataScheduler struct {
	store     catalog.Store
	extractor exif.Extractor
	refs      *ReferenceCache
	tags      *TagIngestor
	status    *StatusSink
	metrics   *metrics.Metrics
	limiter   *rate.Limiter
	batchSize int
	log       zerolog.Logger
}

// NewMetadataScheduler creates a scheduler. extractionsPerSecond paces
// per-image extraction (0 = unpaced); batchSize bounds per-iteration memory
// and transaction size.
func NewMetadataScheduler(store catalog.Store, extractor exif.Extractor, refs *ReferenceCache,
	tags *TagIngestor, status *StatusSink, m *metrics.Metrics,
	batchSize, extractionsPerSecond int, log zerolog.Logger) *MetadataScheduler {

	if batchSize <= 0 {
		batchSize = 100
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if extractionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(extractionsPerSecond), 1)
	}

	return &MetadataScheduler{
		store:     store,
		extractor: extractor,
		refs:      refs,
		tags:      tags,
		status:    status,
		metrics:   m,
		limiter:   limiter,
		batchSize: batchSize,
		log:       log.With().Str("component", "metascan").Logger(),
	}
}

// PerformScan processes batches of images needing metadata until a batch
// comes back empty or the context is cancelled. Per-image failures are
// logged and skipped; a batch whose persistence fails abandons the whole
// pass, leaving the retry to the next scheduled sweep. Re-selecting the
// same unpersisted batch here would spin the loop hot.
func (m *MetadataScheduler) PerformScan(ctx context.Context) error {
	m.log.Debug().Msg("Full metadata scan starting")

	var prev []int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		images, err := m.store.ImagesNeedingMetadata(m.batchSize)
		if err != nil {
			m.log.Error().Err(err).Msg("Querying metadata scan queue failed")
			return err
		}
		if len(images) == 0 {
			break
		}

		ids := make([]int64, len(images))
		for i := range images {
			ids[i] = images[i].ID
		}
		if slices.Equal(ids, prev) {
			m.log.Error().Int("count", len(ids)).
				Msg("Metadata scan made no progress; abandoning pass")
			return errors.New("metadata scan made no progress")
		}
		prev = ids

		if err := m.processBatch(ctx, images); err != nil {
			m.log.Error().Err(err).Msg("Metadata batch failed; abandoning pass")
			return err
		}
	}

	m.log.Debug().Msg("Metadata scan complete")
	return nil
}

func (m *MetadataScheduler) processBatch(ctx context.Context, images []models.Image) error {
	start := time.Now()

	imageKeywords := make(map[int64][]string)
	var newEntries, updatedEntries []*models.ImageMetadata

	for i := range images {
		img := &images[i]

		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}

		meta := img.Metadata
		if meta == nil {
			meta = &models.ImageMetadata{ImageID: img.ID}
			newEntries = append(newEntries, meta)
		} else {
			updatedEntries = append(updatedEntries, meta)
		}

		keywords := m.populateMetadata(img, meta)
		if len(keywords) > 0 {
			imageKeywords[img.ID] = keywords
		}
	}

	m.log.Debug().Int("new", len(newEntries)).Int("updated", len(updatedEntries)).
		Msg("Persisting metadata entries")

	// Inserts and updates go as two separate batch calls. A combined
	// insert-or-update of metadata rows re-inserts rows with a zero key,
	// so the split is a correctness requirement, not a tuning choice.
	if err := m.store.InsertMetadataBatch(newEntries); err != nil {
		return err
	}
	if err := m.store.UpdateMetadataBatch(updatedEntries); err != nil {
		return err
	}

	// Tag failures stay contained; they never undo persisted metadata.
	if err := m.tags.AddTags(imageKeywords); err != nil {
		m.log.Error().Err(err).Msg("Tag ingestion failed")
	}

	elapsed := time.Since(start)
	if m.metrics != nil {
		m.metrics.MetadataScanDuration.Observe(elapsed.Seconds())
	}
	if m.status != nil {
		m.status.Set(fmt.Sprintf("Completed metadata scan batch (%d images in %s).",
			len(images), elapsed.Round(time.Millisecond)))
	}
	return nil
}

// populateMetadata fills one metadata record from the extractor and the
// reference caches, returning any keywords found. The record's LastUpdated
// always moves forward, including on extraction failure, so a permanently
// unreadable file doesn't recirculate through every scan. It is stamped no
// earlier than the image's own LastUpdated: a future-dated image (clock
// skew, another writer on a shared catalog) must not stay stale until the
// wall clock catches up.
func (m *MetadataScheduler) populateMetadata(img *models.Image, meta *models.ImageMetadata) []string {
	meta.LastUpdated = time.Now().UTC()
	if meta.LastUpdated.Before(img.LastUpdated) {
		meta.LastUpdated = img.LastUpdated
	}

	props, err := m.extractor.Extract(img.FullPath())
	if err != nil {
		m.log.Warn().Str("path", img.FullPath()).Err(err).Msg("Metadata extraction failed")
		if m.metrics != nil {
			m.metrics.MetadataScansTotal.WithLabelValues("failed").Inc()
		}
		return nil
	}

	meta.Width = props.Width
	meta.Height = props.Height
	meta.Description = props.Description
	meta.Caption = props.Caption
	meta.DateTaken = props.DateTaken
	meta.ISO = props.ISO
	meta.FNum = props.FNumber
	meta.Exposure = props.Exposure
	meta.FlashFired = props.FlashFired

	if props.CameraMake != "" || props.CameraModel != "" {
		camera, err := m.refs.GetOrCreateCamera(props.CameraMake, props.CameraModel, props.CameraSerial)
		if err != nil {
			m.log.Error().Err(err).Msg("Resolving camera failed")
		} else if camera != nil {
			meta.CameraID = &camera.ID
		}
	}

	if props.LensMake != "" || props.LensModel != "" {
		lens, err := m.refs.GetOrCreateLens(props.LensMake, props.LensModel, props.LensSerial)
		if err != nil {
			m.log.Error().Err(err).Msg("Resolving lens failed")
		} else if lens != nil {
			meta.LensID = &lens.ID
		}
	}

	if m.metrics != nil {
		m.metrics.MetadataScansTotal.WithLabelValues("ok").Inc()
	}
	return props.Keywords
}
