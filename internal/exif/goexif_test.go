package exif

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("photo.jpg"))
	assert.True(t, IsImageFile("PHOTO.JPG"))
	assert.True(t, IsImageFile("scan.tiff"))
	assert.True(t, IsImageFile("anim.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("archive.jpg.zip"))
	assert.False(t, IsImageFile("Makefile"))
	assert.False(t, IsImageFile(""))
}

func TestSplitKeywords(t *testing.T) {
	assert.Equal(t, []string{"beach", "sunset"}, SplitKeywords("beach;sunset"))
	assert.Equal(t, []string{"beach", "sunset"}, SplitKeywords("beach, sunset"))
	assert.Equal(t, []string{"one"}, SplitKeywords("  one  "))
	assert.Nil(t, SplitKeywords(""))
	assert.Empty(t, SplitKeywords(";;,"))
}

func TestFilteredDescription(t *testing.T) {
	assert.Empty(t, filteredDescription("OLYMPUS DIGITAL CAMERA"))
	assert.Empty(t, filteredDescription("  OLYMPUS DIGITAL CAMERA  "))
	assert.Equal(t, "sunset over the bay", filteredDescription("sunset over the bay"))
	assert.Empty(t, filteredDescription(""))
}

func TestDecodeXPString(t *testing.T) {
	// UTF-16LE with a trailing NUL, as Windows writes XP* tags.
	utf16 := []byte{'b', 0, 'e', 0, 'a', 0, 'c', 0, 'h', 0, 0, 0}
	assert.Equal(t, "beach", decodeXPString(&tiff.Tag{Val: utf16}))

	assert.Equal(t, "plain", decodeXPString(&tiff.Tag{Val: []byte("plain\x00")}))
	assert.Empty(t, decodeXPString(&tiff.Tag{Val: nil}))
}

func TestExtractDimensionsWithoutExif(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.png")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 3, 2))))
	require.NoError(t, f.Close())

	extractor := NewGoexifExtractor(zerolog.Nop())
	props, err := extractor.Extract(path)
	require.NoError(t, err)
	require.NotNil(t, props)

	// No EXIF block in a bare PNG; the header still yields dimensions.
	assert.Equal(t, 3, props.Width)
	assert.Equal(t, 2, props.Height)
	assert.Empty(t, props.CameraMake)
	assert.Nil(t, props.DateTaken)
}

func TestExtractUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image at all"), 0o644))

	extractor := NewGoexifExtractor(zerolog.Nop())
	_, err := extractor.Extract(path)
	assert.Error(t, err)
}

func TestExtractMissingFile(t *testing.T) {
	extractor := NewGoexifExtractor(zerolog.Nop())
	_, err := extractor.Extract(filepath.Join(t.TempDir(), "absent.jpg"))
	assert.Error(t, err)
}
