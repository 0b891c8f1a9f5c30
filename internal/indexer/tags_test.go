package indexer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pictor/internal/catalog"
	"pictor/internal/events"
	"pictor/internal/models"
)

func seedImage(t *testing.T, store catalog.Store, path, name string) *models.Image {
	t.Helper()
	folder := &models.Folder{Path: path}
	require.NoError(t, store.CreateFolder(folder))
	img := &models.Image{FolderID: folder.ID, FileName: name, LastUpdated: time.Now().UTC()}
	require.NoError(t, store.ApplyFolderDiff(folder, []*models.Image{img}, nil, nil))
	return img
}

func imageKeywordSet(t *testing.T, store catalog.Store, imageID int64) map[string]bool {
	t.Helper()
	tags, err := store.TagsForImage(imageID)
	require.NoError(t, err)

	keywords := map[string]bool{}
	for _, tag := range tags {
		keywords[tag.Keyword] = true
	}
	return keywords
}

func TestAddTagsCreatesAndAssociates(t *testing.T) {
	store := openTestStore(t)
	ingestor := NewTagIngestor(store, NewReferenceCache(store, testLogger()), nil, testLogger())
	img := seedImage(t, store, "/photos", "pic.jpg")

	require.NoError(t, ingestor.AddTags(map[int64][]string{
		img.ID: {"beach", "sunset", "beach"},
	}))

	tags, err := store.AllTags()
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	for _, tag := range tags {
		assert.Equal(t, models.TagTypeExif, tag.TagType)
	}

	keywords := imageKeywordSet(t, store, img.ID)
	assert.True(t, keywords["beach"])
	assert.True(t, keywords["sunset"])
	assert.Len(t, keywords, 2)
}

func TestAddTagsReplacesAssociations(t *testing.T) {
	store := openTestStore(t)
	ingestor := NewTagIngestor(store, NewReferenceCache(store, testLogger()), nil, testLogger())
	img := seedImage(t, store, "/photos", "pic.jpg")

	require.NoError(t, ingestor.AddTags(map[int64][]string{img.ID: {"alpha", "beta"}}))
	require.NoError(t, ingestor.AddTags(map[int64][]string{img.ID: {"alpha"}}))

	keywords := imageKeywordSet(t, store, img.ID)
	assert.True(t, keywords["alpha"])
	assert.False(t, keywords["beta"])
	assert.Len(t, keywords, 1)

	// The beta tag row itself survives for reuse elsewhere.
	tags, err := store.AllTags()
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestAddTagsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ingestor := NewTagIngestor(store, NewReferenceCache(store, testLogger()), nil, testLogger())
	img := seedImage(t, store, "/photos", "pic.jpg")

	input := map[int64][]string{img.ID: {"beach", "sunset"}}
	require.NoError(t, ingestor.AddTags(input))
	require.NoError(t, ingestor.AddTags(input))

	tags, err := store.AllTags()
	require.NoError(t, err)
	assert.Len(t, tags, 2)
	assert.Len(t, imageKeywordSet(t, store, img.ID), 2)
}

func TestAddTagsReusesExistingTagRows(t *testing.T) {
	store := openTestStore(t)
	ingestor := NewTagIngestor(store, NewReferenceCache(store, testLogger()), nil, testLogger())

	first := seedImage(t, store, "/photos/a", "one.jpg")
	second := seedImage(t, store, "/photos/b", "two.jpg")

	require.NoError(t, ingestor.AddTags(map[int64][]string{first.ID: {"shared"}}))
	require.NoError(t, ingestor.AddTags(map[int64][]string{second.ID: {"shared"}}))

	tags, err := store.AllTags()
	require.NoError(t, err)
	assert.Len(t, tags, 1)
}

func TestAddTagsIgnoresZeroImageIDs(t *testing.T) {
	store := openTestStore(t)
	ingestor := NewTagIngestor(store, NewReferenceCache(store, testLogger()), nil, testLogger())

	require.NoError(t, ingestor.AddTags(map[int64][]string{0: {"ghost"}}))

	tags, err := store.AllTags()
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestAddTagsPublishesTagDataChanged(t *testing.T) {
	store := openTestStore(t)
	bus := events.NewBroker(16)
	ingestor := NewTagIngestor(store, NewReferenceCache(store, testLogger()), bus, testLogger())
	img := seedImage(t, store, "/photos", "pic.jpg")

	changed := make(chan struct{}, 1)
	require.NoError(t, bus.Subscribe(events.TagDataChanged, func() {
		changed <- struct{}{}
	}))

	require.NoError(t, ingestor.AddTags(map[int64][]string{img.ID: {"beach"}}))

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no tag data event published")
	}
}
