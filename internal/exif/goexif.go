package exif

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/rs/zerolog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// The default description some camera firmware stamps into every file.
// Storing thousands of identical copies clogs the catalog for no value.
const olympusDefaultDescription = "OLYMPUS DIGITAL CAMERA"

// GoexifExtractor reads EXIF metadata from image files.
type GoexifExtractor struct {
	log zerolog.Logger
}

// NewGoexifExtractor creates the default metadata extractor.
func NewGoexifExtractor(log zerolog.Logger) *GoexifExtractor {
	return &GoexifExtractor{log: log}
}

// Extract reads the file's EXIF block into an ImageProps. Files without an
// EXIF block still yield props with pixel dimensions when the image header
// can be decoded; a completely unreadable file yields an error.
func (g *GoexifExtractor) Extract(path string) (props *ImageProps, err error) {
	// goexif can panic on malformed makernotes; contain it here.
	defer func() {
		if r := recover(); r != nil {
			props = nil
			err = fmt.Errorf("metadata read panic for %s: %v", path, r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	props = &ImageProps{}

	x, decodeErr := exif.Decode(f)
	if decodeErr == nil {
		g.populateFromExif(x, props)
	} else {
		g.log.Debug().Str("path", path).Err(decodeErr).Msg("No EXIF block")
	}

	if props.Width == 0 || props.Height == 0 {
		if w, h, dimErr := decodeDimensions(f); dimErr == nil {
			props.Width, props.Height = w, h
		} else if decodeErr != nil {
			// Neither EXIF nor the image header was readable.
			return nil, errors.Wrapf(dimErr, "reading %s", path)
		}
	}

	return props, nil
}

func (g *GoexifExtractor) populateFromExif(x *exif.Exif, props *ImageProps) {
	props.Width = tagInt(x, exif.PixelXDimension, exif.ImageWidth)
	props.Height = tagInt(x, exif.PixelYDimension, exif.ImageLength)

	props.Description = filteredDescription(tagString(x, exif.ImageDescription))
	props.Caption = filteredDescription(tagString(x, exif.FieldName("XPComment")))

	if taken, err := x.DateTime(); err == nil {
		utc := taken.UTC()
		props.DateTaken = &utc
	}

	props.ISO = tagString(x, exif.ISOSpeedRatings)
	props.FNumber = tagString(x, exif.FNumber)
	props.Exposure = tagString(x, exif.ExposureTime)

	if flashTag, err := x.Get(exif.Flash); err == nil {
		if flash, err := flashTag.Int(0); err == nil {
			props.FlashFired = flash&0x1 != 0
		}
	}

	props.CameraMake = tagString(x, exif.Make)
	props.CameraModel = tagString(x, exif.Model)
	props.CameraSerial = tagString(x, exif.FieldName("BodySerialNumber"))

	props.LensMake = tagString(x, exif.FieldName("LensMake"))
	props.LensModel = tagString(x, exif.FieldName("LensModel"))
	props.LensSerial = tagString(x, exif.FieldName("LensSerialNumber"))

	if kwTag, err := x.Get(exif.FieldName("XPKeywords")); err == nil {
		props.Keywords = SplitKeywords(decodeXPString(kwTag))
	}
}

// decodeDimensions probes the image header for pixel dimensions without
// decoding pixel data. The stdlib and x/image decoders registered above
// cover the supported extensions.
func decodeDimensions(f *os.File) (int, int, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, 0, err
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// tagString reads the first present tag as a trimmed string. String values
// come back quoted from the tiff layer; rationals come back as "1/200",
// which is stored verbatim.
func tagString(x *exif.Exif, names ...exif.FieldName) string {
	for _, name := range names {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if s, err := tag.StringVal(); err == nil {
			return strings.TrimSpace(s)
		}
		if s := strings.Trim(tag.String(), " \t\""); s != "" {
			return s
		}
	}
	return ""
}

func tagInt(x *exif.Exif, names ...exif.FieldName) int {
	for _, name := range names {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		if v, err := tag.Int(0); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

// decodeXPString decodes a Windows XP* tag, which is stored as UTF-16LE
// bytes rather than an ASCII field.
func decodeXPString(tag *tiff.Tag) string {
	raw := tag.Val
	if len(raw) == 0 {
		return ""
	}

	// Heuristic: UTF-16LE content has a zero high byte on every other
	// position for the basic plane text these tags carry.
	if len(raw) >= 2 && raw[1] == 0x00 {
		runes := make([]rune, 0, len(raw)/2)
		for i := 0; i+1 < len(raw); i += 2 {
			r := rune(raw[i]) | rune(raw[i+1])<<8
			if r == 0 {
				continue
			}
			runes = append(runes, r)
		}
		return string(runes)
	}

	return strings.TrimRight(string(raw), "\x00")
}

// SplitKeywords splits a keyword list on the separators seen in the wild.
func SplitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ','
	})
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if kw := strings.TrimSpace(f); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}

func filteredDescription(desc string) string {
	if strings.TrimSpace(desc) == olympusDefaultDescription {
		return ""
	}
	return desc
}
