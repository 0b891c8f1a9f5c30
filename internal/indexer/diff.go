package indexer

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"pictor/internal/catalog"
	"pictor/internal/exif"
	"pictor/internal/metrics"
	"pictor/internal/models"
)

// ScanResult summarizes one folder image diff pass.
type ScanResult struct {
	FolderPath string
	Processed  int
	New        int
	Updated    int
	Removed    int
	Skipped    bool
	Elapsed    time.Duration
}

// DiffEngine reconciles the catalog's images for one folder against the
// current disk listing.
type DiffEngine struct {
	store   catalog.Store
	status  *StatusSink
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewDiffEngine creates a diff engine.
func NewDiffEngine(store catalog.Store, status *StatusSink, m *metrics.Metrics, log zerolog.Logger) *DiffEngine {
	return &DiffEngine{
		store:   store,
		status:  status,
		metrics: m,
		log:     log.With().Str("component", "diff").Logger(),
	}
}

// ScanFolderImages diffs one folder's images against disk and applies the
// outcome as a single batch. A folder with a non-null scan date is skipped
// unless force is set. If the directory can't be listed the folder is
// abandoned for this pass with no catalog mutation.
func (e *DiffEngine) ScanFolderImages(folder *models.Folder, force bool) (*ScanResult, error) {
	result := &ScanResult{FolderPath: folder.Path}

	if folder.ScanDate != nil && !force {
		result.Skipped = true
		return result, nil
	}

	start := time.Now()

	entries, err := os.ReadDir(folder.Path)
	if err != nil {
		if e.metrics != nil {
			e.metrics.FolderScanFailures.Inc()
		}
		return nil, errors.Wrapf(err, "listing folder %s", folder.Path)
	}

	existing := make(map[string]*models.Image, len(folder.Images))
	for i := range folder.Images {
		existing[folder.Images[i].FileName] = &folder.Images[i]
	}

	onDisk := make(map[string]bool)
	var added, updated []*models.Image

	for _, entry := range entries {
		if entry.IsDir() || !exif.IsImageFile(entry.Name()) {
			continue
		}
		onDisk[entry.Name()] = true
		result.Processed++

		info, err := entry.Info()
		if err != nil {
			// File vanished or unreadable between listing and stat;
			// carry on with the rest of the folder.
			e.log.Error().Str("file", entry.Name()).Err(err).Msg("Stat failed during folder scan")
			continue
		}

		img := existing[entry.Name()]
		if img != nil && writeTimesMatch(info.ModTime(), img.FileLastModDate) {
			e.log.Trace().Str("file", img.FileName).Msg("Indexed image unchanged - skipping")
			continue
		}

		isNew := img == nil
		if isNew {
			img = &models.Image{FileName: entry.Name()}
		}

		img.FileSizeBytes = info.Size()
		img.FileCreationDate = fileCreationTime(info)
		img.FileLastModDate = info.ModTime().UTC()
		img.FolderID = folder.ID
		img.LastUpdated = time.Now().UTC()

		if isNew {
			e.log.Trace().Str("file", img.FileName).Msg("Adding new image")
			added = append(added, img)
			result.New++
		} else {
			updated = append(updated, img)
			result.Updated++
		}
	}

	var removed []models.Image
	for name, img := range existing {
		if !onDisk[name] {
			e.log.Debug().Str("file", name).Int64("id", img.ID).Msg("Deleting image")
			removed = append(removed, *img)
		}
	}
	result.Removed = len(removed)

	now := time.Now().UTC()
	folder.ScanDate = &now

	if err := e.store.ApplyFolderDiff(folder, added, updated, removed); err != nil {
		if e.metrics != nil {
			e.metrics.FolderScanFailures.Inc()
		}
		return nil, errors.Wrapf(err, "persisting diff for folder %s", folder.Path)
	}

	for _, img := range added {
		folder.Images = append(folder.Images, *img)
	}

	result.Elapsed = time.Since(start)
	e.recordResult(result)
	return result, nil
}

func (e *DiffEngine) recordResult(result *ScanResult) {
	if e.metrics != nil {
		e.metrics.FoldersScannedTotal.Inc()
		e.metrics.ImagesAddedTotal.Add(float64(result.New))
		e.metrics.ImagesUpdatedTotal.Add(float64(result.Updated))
		e.metrics.ImagesRemovedTotal.Add(float64(result.Removed))
	}

	if e.status != nil {
		e.status.Set(fmt.Sprintf(
			"Indexed folder %s: processed %d images (%d new, %d updated, %d removed) in %s.",
			result.FolderPath, result.Processed, result.New, result.Updated,
			result.Removed, result.Elapsed.Round(time.Millisecond)))
	}
}

// writeTimesMatch compares mod times at second granularity; filesystems
// and databases round sub-second parts differently.
func writeTimesMatch(a, b time.Time) bool {
	return a.Unix() == b.Unix()
}
