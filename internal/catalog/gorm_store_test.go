package catalog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pictor/internal/database"
	"pictor/internal/models"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()

	// A named shared-cache memory database so the pooled connections all
	// see the same data; the name keeps tests isolated from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	return NewGormStore(db)
}

func makeFolder(t *testing.T, store *GormStore, path string, parentID *int64) *models.Folder {
	t.Helper()
	folder := &models.Folder{Path: path, ParentID: parentID}
	require.NoError(t, store.CreateFolder(folder))
	return folder
}

func makeImage(t *testing.T, store *GormStore, folder *models.Folder, name string, lastUpdated time.Time) *models.Image {
	t.Helper()
	img := &models.Image{
		FolderID:        folder.ID,
		FileName:        name,
		FileLastModDate: lastUpdated,
		LastUpdated:     lastUpdated,
	}
	require.NoError(t, store.ApplyFolderDiff(folder, []*models.Image{img}, nil, nil))
	require.NotZero(t, img.ID)
	return img
}

func TestFolderByPathAbsent(t *testing.T) {
	store := openTestStore(t)

	folder, err := store.FolderByPath("/no/such/folder")
	assert.NoError(t, err)
	assert.Nil(t, folder)
}

func TestFolderRoundTrip(t *testing.T) {
	store := openTestStore(t)

	created := makeFolder(t, store, "/photos", nil)
	assert.NotZero(t, created.ID)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", created.APIKey.String())

	loaded, err := store.FolderByPath("/photos")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "photos", loaded.Name())
	assert.Nil(t, loaded.ScanDate)
}

func TestChildFolders(t *testing.T) {
	store := openTestStore(t)

	root := makeFolder(t, store, "/photos", nil)
	makeFolder(t, store, "/photos/2024", &root.ID)
	makeFolder(t, store, "/photos/2025", &root.ID)
	makeFolder(t, store, "/other", nil)

	children, err := store.ChildFolders(root.ID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestApplyFolderDiff(t *testing.T) {
	store := openTestStore(t)
	folder := makeFolder(t, store, "/photos", nil)

	t0 := time.Now().UTC().Add(-time.Hour)
	keep := makeImage(t, store, folder, "keep.jpg", t0)
	gone := makeImage(t, store, folder, "gone.jpg", t0)

	// One pass that updates keep, adds fresh, removes gone and stamps the
	// folder's scan date.
	now := time.Now().UTC()
	folder.ScanDate = &now
	keep.FileSizeBytes = 4096
	keep.LastUpdated = now
	fresh := &models.Image{FolderID: folder.ID, FileName: "fresh.jpg", LastUpdated: now}

	err := store.ApplyFolderDiff(folder,
		[]*models.Image{fresh},
		[]*models.Image{keep},
		[]models.Image{*gone})
	require.NoError(t, err)

	loaded, err := store.FolderByPath("/photos")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.NotNil(t, loaded.ScanDate)

	names := make(map[string]int64)
	for _, img := range loaded.Images {
		names[img.FileName] = img.FileSizeBytes
	}
	assert.Len(t, names, 2)
	assert.Equal(t, int64(4096), names["keep.jpg"])
	assert.Contains(t, names, "fresh.jpg")
	assert.NotContains(t, names, "gone.jpg")
}

func TestClearFolderScanDates(t *testing.T) {
	store := openTestStore(t)

	now := time.Now().UTC()
	scanned := makeFolder(t, store, "/photos/a", nil)
	scanned.ScanDate = &now
	require.NoError(t, store.SaveFolder(scanned))

	other := makeFolder(t, store, "/photos/b", nil)
	other.ScanDate = &now
	require.NoError(t, store.SaveFolder(other))

	cleared, err := store.ClearFolderScanDates([]string{"/photos/a", "/photos/missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	pending, err := store.FoldersPendingScan(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "/photos/a", pending[0].Path)
}

func TestClearFolderScanDatesEmptyInput(t *testing.T) {
	store := openTestStore(t)

	cleared, err := store.ClearFolderScanDates(nil)
	assert.NoError(t, err)
	assert.Zero(t, cleared)
}

func TestDeleteFoldersCascades(t *testing.T) {
	store := openTestStore(t)

	root := makeFolder(t, store, "/photos", nil)
	child := makeFolder(t, store, "/photos/2024", &root.ID)
	grandchild := makeFolder(t, store, "/photos/2024/trip", &child.ID)

	img := makeImage(t, store, grandchild, "pic.jpg", time.Now().UTC())
	require.NoError(t, store.InsertMetadataBatch([]*models.ImageMetadata{
		{ImageID: img.ID, Width: 800, LastUpdated: time.Now().UTC()},
	}))
	require.NoError(t, store.InsertTagBatch([]*models.Tag{{Keyword: "trip", TagType: models.TagTypeExif}}))
	tags, err := store.AllTags()
	require.NoError(t, err)
	require.NoError(t, store.ReplaceImageTags([]int64{img.ID},
		[]models.ImageTag{{ImageID: img.ID, TagID: tags[0].ID}}))

	// Deleting the middle folder takes the grandchild and all its image
	// rows with it.
	require.NoError(t, store.DeleteFolders([]models.Folder{*child}))

	loaded, err := store.FolderByPath("/photos/2024/trip")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	db := store.db
	var imageCount, metaCount, assocCount int64
	db.Model(&models.Image{}).Count(&imageCount)
	db.Model(&models.ImageMetadata{}).Count(&metaCount)
	db.Model(&models.ImageTag{}).Count(&assocCount)
	assert.Zero(t, imageCount)
	assert.Zero(t, metaCount)
	assert.Zero(t, assocCount)

	// The tag row itself survives; only associations are owned by images.
	tags, err = store.AllTags()
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestImagesNeedingMetadataOrderAndStaleness(t *testing.T) {
	store := openTestStore(t)
	folder := makeFolder(t, store, "/photos", nil)

	base := time.Now().UTC().Add(-time.Hour)
	older := makeImage(t, store, folder, "older.jpg", base)
	newer := makeImage(t, store, folder, "newer.jpg", base.Add(10*time.Minute))
	fresh := makeImage(t, store, folder, "fresh.jpg", base.Add(20*time.Minute))

	// fresh has current metadata, newer has stale metadata, older has none.
	require.NoError(t, store.InsertMetadataBatch([]*models.ImageMetadata{
		{ImageID: fresh.ID, LastUpdated: base.Add(30 * time.Minute)},
		{ImageID: newer.ID, LastUpdated: base.Add(5 * time.Minute)},
	}))

	images, err := store.ImagesNeedingMetadata(10)
	require.NoError(t, err)
	require.Len(t, images, 2)

	// Most recently touched first.
	assert.Equal(t, newer.ID, images[0].ID)
	assert.Equal(t, older.ID, images[1].ID)

	// The folder and any existing metadata come preloaded for extraction.
	require.NotNil(t, images[0].Folder)
	assert.Equal(t, "/photos", images[0].Folder.Path)
	assert.NotNil(t, images[0].Metadata)
	assert.Nil(t, images[1].Metadata)
}

func TestImagesNeedingMetadataHonorsLimit(t *testing.T) {
	store := openTestStore(t)
	folder := makeFolder(t, store, "/photos", nil)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		makeImage(t, store, folder, fmt.Sprintf("img%d.jpg", i), base.Add(time.Duration(i)*time.Second))
	}

	images, err := store.ImagesNeedingMetadata(3)
	require.NoError(t, err)
	assert.Len(t, images, 3)
}

func TestMetadataInsertThenUpdate(t *testing.T) {
	store := openTestStore(t)
	folder := makeFolder(t, store, "/photos", nil)
	img := makeImage(t, store, folder, "pic.jpg", time.Now().UTC().Add(-time.Minute))

	entry := &models.ImageMetadata{ImageID: img.ID, Width: 640, Height: 480, LastUpdated: time.Now().UTC()}
	require.NoError(t, store.InsertMetadataBatch([]*models.ImageMetadata{entry}))

	entry.Width = 1920
	entry.Height = 1080
	entry.LastUpdated = time.Now().UTC()
	require.NoError(t, store.UpdateMetadataBatch([]*models.ImageMetadata{entry}))

	var count int64
	store.db.Model(&models.ImageMetadata{}).Count(&count)
	assert.Equal(t, int64(1), count)

	var loaded models.ImageMetadata
	require.NoError(t, store.db.First(&loaded, "image_id = ?", img.ID).Error)
	assert.Equal(t, 1920, loaded.Width)
}

func TestReplaceImageTagsFullReplace(t *testing.T) {
	store := openTestStore(t)
	folder := makeFolder(t, store, "/photos", nil)
	img := makeImage(t, store, folder, "pic.jpg", time.Now().UTC())

	require.NoError(t, store.InsertTagBatch([]*models.Tag{
		{Keyword: "alpha", TagType: models.TagTypeExif},
		{Keyword: "beta", TagType: models.TagTypeExif},
	}))
	tags, err := store.AllTags()
	require.NoError(t, err)
	require.Len(t, tags, 2)
	byKeyword := map[string]int64{}
	for _, tag := range tags {
		byKeyword[tag.Keyword] = tag.ID
	}

	require.NoError(t, store.ReplaceImageTags([]int64{img.ID}, []models.ImageTag{
		{ImageID: img.ID, TagID: byKeyword["alpha"]},
		{ImageID: img.ID, TagID: byKeyword["beta"]},
	}))

	// The next ingest only carries alpha; beta must be dropped, not merged.
	require.NoError(t, store.ReplaceImageTags([]int64{img.ID}, []models.ImageTag{
		{ImageID: img.ID, TagID: byKeyword["alpha"]},
	}))

	var assocs []models.ImageTag
	require.NoError(t, store.db.Where("image_id = ?", img.ID).Find(&assocs).Error)
	require.Len(t, assocs, 1)
	assert.Equal(t, byKeyword["alpha"], assocs[0].TagID)
}

func TestReplaceImageTagsEmptySetClears(t *testing.T) {
	store := openTestStore(t)
	folder := makeFolder(t, store, "/photos", nil)
	img := makeImage(t, store, folder, "pic.jpg", time.Now().UTC())

	require.NoError(t, store.InsertTagBatch([]*models.Tag{{Keyword: "solo", TagType: models.TagTypeExif}}))
	tags, err := store.AllTags()
	require.NoError(t, err)
	require.NoError(t, store.ReplaceImageTags([]int64{img.ID},
		[]models.ImageTag{{ImageID: img.ID, TagID: tags[0].ID}}))

	require.NoError(t, store.ReplaceImageTags([]int64{img.ID}, nil))

	var count int64
	store.db.Model(&models.ImageTag{}).Where("image_id = ?", img.ID).Count(&count)
	assert.Zero(t, count)
}
