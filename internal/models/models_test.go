package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderName(t *testing.T) {
	folder := &Folder{Path: "/photos/2024/trip"}
	assert.Equal(t, "trip", folder.Name())
}

func TestImageFullPath(t *testing.T) {
	img := &Image{FileName: "pic.jpg", Folder: &Folder{Path: "/photos/2024"}}
	assert.Equal(t, "/photos/2024/pic.jpg", img.FullPath())

	orphan := &Image{FileName: "pic.jpg"}
	assert.Equal(t, "pic.jpg", orphan.FullPath())
}

func TestCacheKeys(t *testing.T) {
	cam := &Camera{Make: "Nikon", Model: "D850", Serial: "ignored"}
	assert.Equal(t, "NikonD850", cam.CacheKey())

	lens := &Lens{Make: "Sigma", Model: "35mm"}
	assert.Equal(t, "Sigma35mm", lens.CacheKey())

	empty := &Camera{}
	assert.Empty(t, empty.CacheKey())
}
