package catalog

import (
	stderrors "errors"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pictor/internal/models"
)

const insertBatchSize = 200

// GormStore is the gorm-backed catalog store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FolderByPath loads a folder and its images by absolute path. Returns
// (nil, nil) when no folder with that path exists.
func (s *GormStore) FolderByPath(path string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.Preload("Images").Where("path = ?", path).First(&folder).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading folder %s", path)
	}
	return &folder, nil
}

func (s *GormStore) CreateFolder(folder *models.Folder) error {
	return errors.Wrapf(s.db.Omit(clause.Associations).Create(folder).Error,
		"creating folder %s", folder.Path)
}

func (s *GormStore) SaveFolder(folder *models.Folder) error {
	return errors.Wrapf(s.db.Omit(clause.Associations).Save(folder).Error,
		"saving folder %s", folder.Path)
}

func (s *GormStore) ChildFolders(parentID int64) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.Where("parent_id = ?", parentID).Find(&folders).Error
	return folders, errors.Wrap(err, "loading child folders")
}

// DeleteFolders removes the given folders, their descendant folders, and all
// owned images with their metadata and tag associations. Cascading here, in
// the persistence layer, keeps the engine free of delete ordering concerns.
func (s *GormStore) DeleteFolders(folders []models.Folder) error {
	if len(folders) == 0 {
		return nil
	}

	folderIDs := make([]int64, 0, len(folders))
	for _, f := range folders {
		folderIDs = append(folderIDs, f.ID)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Walk down the tree: subfolders of a deleted directory are gone
		// from disk too, even though the scanner only diffs one level.
		all := append([]int64{}, folderIDs...)
		frontier := folderIDs
		for len(frontier) > 0 {
			var childIDs []int64
			if err := tx.Model(&models.Folder{}).
				Where("parent_id IN ?", frontier).
				Pluck("id", &childIDs).Error; err != nil {
				return errors.Wrap(err, "collecting descendant folders")
			}
			all = append(all, childIDs...)
			frontier = childIDs
		}

		var imageIDs []int64
		if err := tx.Model(&models.Image{}).
			Where("folder_id IN ?", all).
			Pluck("id", &imageIDs).Error; err != nil {
			return errors.Wrap(err, "collecting folder images")
		}

		if err := deleteImages(tx, imageIDs); err != nil {
			return err
		}

		if err := tx.Where("id IN ?", all).Delete(&models.Folder{}).Error; err != nil {
			return errors.Wrap(err, "deleting folders")
		}
		return nil
	})
}

func (s *GormStore) FoldersPendingScan(limit int) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.Where("scan_date IS NULL").Limit(limit).Find(&folders).Error
	return folders, errors.Wrap(err, "loading folders pending scan")
}

// ClearFolderScanDates nulls the scan date of every folder whose path is in
// the list, flagging them for rescan in one batch update.
func (s *GormStore) ClearFolderScanDates(paths []string) (int64, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	result := s.db.Model(&models.Folder{}).
		Where("path IN ?", paths).
		Update("scan_date", nil)
	return result.RowsAffected, errors.Wrap(result.Error, "clearing folder scan dates")
}

// ApplyFolderDiff persists the outcome of one folder image diff as a single
// transaction: inserts, updates, removals and the folder's new scan date.
// Readers see the prior state or the fully-updated state, never a partial
// folder.
func (s *GormStore) ApplyFolderDiff(folder *models.Folder, added, updated []*models.Image, removed []models.Image) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(added) > 0 {
			if err := tx.Omit(clause.Associations).CreateInBatches(added, insertBatchSize).Error; err != nil {
				return errors.Wrap(err, "inserting images")
			}
		}

		for _, img := range updated {
			if err := tx.Omit(clause.Associations).Save(img).Error; err != nil {
				return errors.Wrapf(err, "updating image %s", img.FileName)
			}
		}

		if len(removed) > 0 {
			imageIDs := make([]int64, 0, len(removed))
			for _, img := range removed {
				imageIDs = append(imageIDs, img.ID)
			}
			if err := deleteImages(tx, imageIDs); err != nil {
				return err
			}
		}

		err := tx.Model(&models.Folder{}).
			Where("id = ?", folder.ID).
			Updates(map[string]interface{}{
				"scan_date": folder.ScanDate,
				"parent_id": folder.ParentID,
			}).Error
		return errors.Wrapf(err, "updating folder %s", folder.Path)
	})
}

// ImagesNeedingMetadata returns images with no metadata, or metadata older
// than the image itself, most recently touched first. Freshly changed files
// jump the queue ahead of the stale long tail.
func (s *GormStore) ImagesNeedingMetadata(limit int) ([]models.Image, error) {
	var images []models.Image
	err := s.db.
		Joins("LEFT JOIN image_metadata ON image_metadata.image_id = images.id").
		Where("image_metadata.image_id IS NULL OR image_metadata.last_updated < images.last_updated").
		Order("images.last_updated DESC").
		Limit(limit).
		Preload("Folder").
		Preload("Metadata").
		Find(&images).Error
	return images, errors.Wrap(err, "querying images needing metadata")
}

func (s *GormStore) InsertMetadataBatch(entries []*models.ImageMetadata) error {
	if len(entries) == 0 {
		return nil
	}
	return errors.Wrap(
		s.db.Omit(clause.Associations).CreateInBatches(entries, insertBatchSize).Error,
		"inserting metadata batch")
}

func (s *GormStore) UpdateMetadataBatch(entries []*models.ImageMetadata) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			if err := tx.Omit(clause.Associations).Save(entry).Error; err != nil {
				return errors.Wrapf(err, "updating metadata for image %d", entry.ImageID)
			}
		}
		return nil
	})
}

func (s *GormStore) AllCameras() ([]models.Camera, error) {
	var cameras []models.Camera
	err := s.db.Find(&cameras).Error
	return cameras, errors.Wrap(err, "loading cameras")
}

func (s *GormStore) AllLenses() ([]models.Lens, error) {
	var lenses []models.Lens
	err := s.db.Find(&lenses).Error
	return lenses, errors.Wrap(err, "loading lenses")
}

func (s *GormStore) AllTags() ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.Find(&tags).Error
	return tags, errors.Wrap(err, "loading tags")
}

func (s *GormStore) CreateCamera(camera *models.Camera) error {
	return errors.Wrap(s.db.Create(camera).Error, "creating camera")
}

func (s *GormStore) CreateLens(lens *models.Lens) error {
	return errors.Wrap(s.db.Create(lens).Error, "creating lens")
}

func (s *GormStore) InsertTagBatch(tags []*models.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	return errors.Wrap(
		s.db.CreateInBatches(tags, insertBatchSize).Error,
		"inserting tag batch")
}

// ReplaceImageTags swaps in the complete new association set for the given
// images in one transaction: delete everything they had, insert everything
// they have now. Tags removed at the source are dropped, not merged over.
func (s *GormStore) ReplaceImageTags(imageIDs []int64, assocs []models.ImageTag) error {
	if len(imageIDs) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id IN ?", imageIDs).Delete(&models.ImageTag{}).Error; err != nil {
			return errors.Wrap(err, "deleting image tags")
		}
		if len(assocs) > 0 {
			err := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(assocs, insertBatchSize).Error
			if err != nil {
				return errors.Wrap(err, "inserting image tags")
			}
		}
		return nil
	})
}

// TagsForImage loads the tags currently associated with one image.
func (s *GormStore) TagsForImage(imageID int64) ([]models.Tag, error) {
	var tags []models.Tag
	err := s.db.
		Joins("JOIN image_tags ON image_tags.tag_id = tags.id").
		Where("image_tags.image_id = ?", imageID).
		Find(&tags).Error
	return tags, errors.Wrapf(err, "loading tags for image %d", imageID)
}

// deleteImages removes images and their dependent metadata and tag rows.
func deleteImages(tx *gorm.DB, imageIDs []int64) error {
	if len(imageIDs) == 0 {
		return nil
	}
	if err := tx.Where("image_id IN ?", imageIDs).Delete(&models.ImageTag{}).Error; err != nil {
		return errors.Wrap(err, "deleting image tags")
	}
	if err := tx.Where("image_id IN ?", imageIDs).Delete(&models.ImageMetadata{}).Error; err != nil {
		return errors.Wrap(err, "deleting image metadata")
	}
	if err := tx.Where("id IN ?", imageIDs).Delete(&models.Image{}).Error; err != nil {
		return errors.Wrap(err, "deleting images")
	}
	return nil
}
