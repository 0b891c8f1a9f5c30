package indexer

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"pictor/internal/catalog"
	"pictor/internal/events"
	"pictor/internal/metrics"
	"pictor/internal/models"
)

// WatchRegistrar is the slice of the watch queue the scanner needs: folder
// watches are added as folders are scanned and dropped as they are deleted.
type WatchRegistrar interface {
	Watch(path string) error
	Unwatch(path string)
}

// MonitoredFolderFunc decides whether a directory name should be indexed.
type MonitoredFolderFunc func(name string) bool

// DefaultMonitoredFolder skips hidden directories.
func DefaultMonitoredFolder(name string) bool {
	return !isHidden(name)
}

// FolderScanner recursively synchronizes the catalog's folder tree with
// disk, delegating per-folder image reconciliation to the diff engine.
type FolderScanner struct {
	store     catalog.Store
	diff      *DiffEngine
	watch     WatchRegistrar
	bus       *events.Broker
	metrics   *metrics.Metrics
	monitored MonitoredFolderFunc
	log       zerolog.Logger
}

// NewFolderScanner creates a folder scanner. The monitored predicate may be
// nil, in which case hidden directories are skipped.
func NewFolderScanner(store catalog.Store, diff *DiffEngine, watch WatchRegistrar,
	bus *events.Broker, m *metrics.Metrics, monitored MonitoredFolderFunc, log zerolog.Logger) *FolderScanner {
	if monitored == nil {
		monitored = DefaultMonitoredFolder
	}
	return &FolderScanner{
		store:     store,
		diff:      diff,
		watch:     watch,
		bus:       bus,
		metrics:   m,
		monitored: monitored,
		log:       log.With().Str("component", "scanner").Logger(),
	}
}

// IndexFolder synchronizes one directory and recurses into its monitored
// subdirectories. A failure in one folder is logged and contained; sibling
// and child folders are still walked. Only a failure to list the directory
// itself stops the walk below it.
func (s *FolderScanner) IndexFolder(dirPath string, parent *models.Folder) error {
	subDirs, err := s.listSubDirs(dirPath)
	if err != nil {
		s.log.Error().Str("path", dirPath).Err(err).Msg("Listing folder failed")
		return err
	}

	folder, err := s.syncFolder(dirPath, parent, subDirs)
	if err != nil {
		// No folder record was established for this path; recursion
		// below proceeds with a nil parent, to be reparented by a
		// later successful pass.
		s.log.Error().Str("path", dirPath).Err(err).Msg("Scanning folder failed")
		if s.metrics != nil {
			s.metrics.FolderScanFailures.Inc()
		}
	} else {
		if _, err := s.diff.ScanFolderImages(folder, false); err != nil {
			s.log.Error().Str("path", dirPath).Err(err).Msg("Image diff failed")
		}

		if s.watch != nil {
			if err := s.watch.Watch(dirPath); err != nil {
				s.log.Error().Str("path", dirPath).Err(err).Msg("Registering folder watch failed")
			}
		}
	}

	for _, sub := range subDirs {
		if err := s.IndexFolder(filepath.Join(dirPath, sub), folder); err != nil {
			s.log.Error().Str("path", sub).Err(err).Msg("Indexing subfolder failed")
		}
	}

	return nil
}

// syncFolder loads or creates the folder record for a path and removes
// catalog child folders that no longer exist on disk.
func (s *FolderScanner) syncFolder(dirPath string, parent *models.Folder, subDirs []string) (*models.Folder, error) {
	folder, err := s.store.FolderByPath(dirPath)
	if err != nil {
		return nil, err
	}

	topologyChanged := false

	if folder == nil {
		s.log.Debug().Str("path", dirPath).Msg("Scanning new folder")
		folder = &models.Folder{Path: dirPath}
		if parent != nil {
			folder.ParentID = &parent.ID
		}
		if err := s.store.CreateFolder(folder); err != nil {
			return nil, err
		}
		topologyChanged = true
	} else {
		s.log.Debug().Str("path", dirPath).Int("images", len(folder.Images)).
			Msg("Scanning existing folder")
		if parent != nil && (folder.ParentID == nil || *folder.ParentID != parent.ID) {
			folder.ParentID = &parent.ID
			if err := s.store.SaveFolder(folder); err != nil {
				return nil, err
			}
		}
	}

	// Catalog children whose directories vanished from disk get removed,
	// along with their watches. The store cascades images and tags.
	children, err := s.store.ChildFolders(folder.ID)
	if err != nil {
		return folder, err
	}

	live := make(map[string]bool, len(subDirs))
	for _, sub := range subDirs {
		live[filepath.Join(dirPath, sub)] = true
	}

	var missing []models.Folder
	for _, child := range children {
		if !live[child.Path] {
			missing = append(missing, child)
		}
	}

	if len(missing) > 0 {
		for _, dead := range missing {
			s.log.Debug().Str("path", dead.Path).Msg("Deleting folder")
			if s.watch != nil {
				s.watch.Unwatch(dead.Path)
			}
		}
		s.log.Info().Int("count", len(missing)).Msg("Removing deleted folders")

		if err := s.store.DeleteFolders(missing); err != nil {
			return folder, err
		}
		if s.metrics != nil {
			s.metrics.FoldersDeletedTotal.Add(float64(len(missing)))
		}
		topologyChanged = true
	}

	if topologyChanged {
		s.notifyFolderChanged()
	}

	return folder, nil
}

// listSubDirs enumerates monitored subdirectory names of a path.
func (s *FolderScanner) listSubDirs(dirPath string) ([]string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dirPath)
	}

	var subDirs []string
	for _, entry := range entries {
		if entry.IsDir() && s.monitored(entry.Name()) {
			subDirs = append(subDirs, entry.Name())
		}
	}
	return subDirs, nil
}

func (s *FolderScanner) notifyFolderChanged() {
	s.log.Debug().Msg("Folders changed")
	if s.bus != nil {
		s.bus.Publish(events.FolderTopologyChanged)
	}
}
