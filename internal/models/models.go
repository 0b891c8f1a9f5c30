package models

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Folder represents the folders table. Folders mirror the on-disk directory
// tree: one row per directory, linked to its parent. A null ScanDate is the
// sole signal that the folder is pending a (re)scan.
type Folder struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	APIKey    uuid.UUID  `gorm:"type:uuid;uniqueIndex" json:"api_key"`
	Path      string     `gorm:"size:1024;uniqueIndex;not null" json:"path"`
	ParentID  *int64     `gorm:"index" json:"parent_id"`
	ScanDate  *time.Time `gorm:"index" json:"scan_date"`
	CreatedAt time.Time  `json:"created_at"`

	// Relationships
	Parent *Folder `gorm:"foreignKey:ParentID" json:"-"`
	Images []Image `gorm:"foreignKey:FolderID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Folder) TableName() string {
	return "folders"
}

// BeforeCreate sets the API key before creating a folder
func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.APIKey == uuid.Nil {
		f.APIKey = uuid.New()
	}
	return nil
}

// Name returns the leaf directory name of the folder path.
func (f *Folder) Name() string {
	return filepath.Base(f.Path)
}

// Image represents the images table. An image is uniquely identified by
// (folder, file name). FileLastModDate is the on-disk write time used for
// change detection; LastUpdated is the catalog-side touch time.
type Image struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	APIKey           uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"api_key"`
	FolderID         int64     `gorm:"uniqueIndex:idx_images_folder_file;not null" json:"folder_id"`
	FileName         string    `gorm:"size:512;uniqueIndex:idx_images_folder_file;not null" json:"file_name"`
	FileSizeBytes    int64     `json:"file_size_bytes"`
	FileCreationDate time.Time `json:"file_creation_date"`
	FileLastModDate  time.Time `json:"file_last_mod_date"`
	LastUpdated      time.Time `gorm:"index" json:"last_updated"`
	CreatedAt        time.Time `json:"created_at"`

	// Relationships
	Folder   *Folder        `gorm:"foreignKey:FolderID" json:"-"`
	Metadata *ImageMetadata `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE" json:"metadata"`
}

func (Image) TableName() string {
	return "images"
}

// BeforeCreate sets the API key before creating an image
func (i *Image) BeforeCreate(tx *gorm.DB) error {
	if i.APIKey == uuid.Nil {
		i.APIKey = uuid.New()
	}
	return nil
}

// FullPath returns the absolute path of the image file. The folder must be
// loaded for this to work.
func (i *Image) FullPath() string {
	if i.Folder == nil {
		return i.FileName
	}
	return filepath.Join(i.Folder.Path, i.FileName)
}

// ImageMetadata represents the image_metadata table, a 1:1 extension of an
// image holding its extracted EXIF fields. Metadata is stale when its
// LastUpdated precedes the image's LastUpdated.
type ImageMetadata struct {
	ImageID     int64      `gorm:"primaryKey" json:"image_id"`
	Width       int        `json:"width"`
	Height      int        `json:"height"`
	Description string     `gorm:"size:2048" json:"description"`
	Caption     string     `gorm:"size:2048" json:"caption"`
	DateTaken   *time.Time `gorm:"index" json:"date_taken"`
	ISO         string     `gorm:"size:32" json:"iso"`
	FNum        string     `gorm:"size:32" json:"f_num"`
	Exposure    string     `gorm:"size:32" json:"exposure"`
	FlashFired  bool       `json:"flash_fired"`
	CameraID    *int64     `gorm:"index" json:"camera_id"`
	LensID      *int64     `gorm:"index" json:"lens_id"`
	LastUpdated time.Time  `json:"last_updated"`

	// Relationships
	Image  *Image  `gorm:"foreignKey:ImageID" json:"-"`
	Camera *Camera `gorm:"foreignKey:CameraID" json:"camera"`
	Lens   *Lens   `gorm:"foreignKey:LensID" json:"lens"`
}

func (ImageMetadata) TableName() string {
	return "image_metadata"
}

// Camera represents the cameras table, deduplicated by make+model.
type Camera struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Make   string `gorm:"size:255" json:"make"`
	Model  string `gorm:"size:255" json:"model"`
	Serial string `gorm:"size:255" json:"serial"`
}

func (Camera) TableName() string {
	return "cameras"
}

// CacheKey returns the natural lookup key for the camera. Make and model
// are concatenated without a separator, so ambiguous make/model boundaries
// can collide; a known limitation, not worth a schema change.
func (c *Camera) CacheKey() string {
	return c.Make + c.Model
}

// Lens represents the lenses table, deduplicated by make+model.
type Lens struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Make   string `gorm:"size:255" json:"make"`
	Model  string `gorm:"size:255" json:"model"`
	Serial string `gorm:"size:255" json:"serial"`
}

func (Lens) TableName() string {
	return "lenses"
}

// CacheKey returns the natural lookup key for the lens.
func (l *Lens) CacheKey() string {
	return l.Make + l.Model
}

// Tag types record where a keyword came from.
const (
	TagTypeExif = "exif" // extracted from image metadata
	TagTypeUser = "user" // applied by a person
)

// Tag represents the tags table. Keywords are unique.
type Tag struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Keyword string `gorm:"size:255;uniqueIndex;not null" json:"keyword"`
	TagType string `gorm:"size:32;not null" json:"tag_type"`
}

func (Tag) TableName() string {
	return "tags"
}

// ImageTag represents the image_tags junction table. The full association
// set for an image is always replaced in one pass, never diffed.
type ImageTag struct {
	ImageID int64 `gorm:"primaryKey" json:"image_id"`
	TagID   int64 `gorm:"primaryKey" json:"tag_id"`

	// Relationships
	Image *Image `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE" json:"-"`
	Tag   *Tag   `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ImageTag) TableName() string {
	return "image_tags"
}
