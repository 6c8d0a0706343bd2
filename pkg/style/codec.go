package style

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP alongside imaging's JPEG, PNG, GIF, BMP and TIFF
)

// Output format of every render.
const (
	ContentType = "image/jpeg"
	Extension   = ".jpg"
)

// Quality bounds accepted by the JPEG encoder.
const (
	MinQuality     = 0
	MaxQuality     = 100
	DefaultQuality = 85
)

// Decode parses src into a raster image and reports the detected format
// ("jpeg", "png", "gif", "bmp", "tiff" or "webp"). EXIF orientation is not
// applied; pixels are used as stored.
func Decode(src []byte) (image.Image, string, error) {
	if len(src) == 0 {
		return nil, "", &DecodeError{Err: ErrEmptyInput}
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	return img, format, nil
}

// Encode serializes img as a baseline JPEG at the given quality.
// Quality is clamped to [MinQuality, MaxQuality].
func Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(ClampQuality(quality))); err != nil {
		return nil, &EncodeError{Err: err}
	}
	return buf.Bytes(), nil
}

// ClampQuality restricts q to [MinQuality, MaxQuality].
func ClampQuality(q int) int {
	if q < MinQuality {
		return MinQuality
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}
