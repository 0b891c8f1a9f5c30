package exif

import (
	"time"
)

// ImageProps is the structured result of metadata extraction for one file.
// Fields the file doesn't carry are left at their zero value.
type ImageProps struct {
	Width  int
	Height int

	Description string
	Caption     string
	DateTaken   *time.Time

	ISO      string
	FNumber  string
	Exposure string

	FlashFired bool

	CameraMake   string
	CameraModel  string
	CameraSerial string

	LensMake   string
	LensModel  string
	LensSerial string

	Keywords []string
}

// Extractor converts an image file path into structured metadata.
// Implementations must never panic past this boundary; any failure is an
// error the caller maps to "no metadata available".
type Extractor interface {
	Extract(path string) (*ImageProps, error)
}
