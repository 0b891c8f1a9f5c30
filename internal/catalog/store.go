package catalog

import (
	"pictor/internal/models"
)

// Store is the persistence boundary for the indexing engine. The engine
// never depends on query syntax beyond these primitives: loads, creates,
// bulk inserts, bulk updates, batch deletes, set-by-predicate batch updates
// and transaction scoping.
//
// Bulk insert and bulk update of one entity kind are deliberately separate
// calls; combined insert-or-update of metadata rows has shown duplicate-row
// behavior, so mixing them is not offered.
type Store interface {
	// Folder operations
	FolderByPath(path string) (*models.Folder, error) // (nil, nil) when absent
	CreateFolder(folder *models.Folder) error
	SaveFolder(folder *models.Folder) error
	ChildFolders(parentID int64) ([]models.Folder, error)
	DeleteFolders(folders []models.Folder) error
	FoldersPendingScan(limit int) ([]models.Folder, error)
	ClearFolderScanDates(paths []string) (int64, error)

	// Image operations: one folder diff is applied as a single batch.
	ApplyFolderDiff(folder *models.Folder, added, updated []*models.Image, removed []models.Image) error

	// Metadata operations
	ImagesNeedingMetadata(limit int) ([]models.Image, error)
	InsertMetadataBatch(entries []*models.ImageMetadata) error
	UpdateMetadataBatch(entries []*models.ImageMetadata) error

	// Reference entities
	AllCameras() ([]models.Camera, error)
	AllLenses() ([]models.Lens, error)
	AllTags() ([]models.Tag, error)
	CreateCamera(camera *models.Camera) error
	CreateLens(lens *models.Lens) error
	InsertTagBatch(tags []*models.Tag) error

	// Tag associations: the complete set for each image is replaced
	// atomically, never diffed.
	ReplaceImageTags(imageIDs []int64, assocs []models.ImageTag) error
	TagsForImage(imageID int64) ([]models.Tag, error)
}
