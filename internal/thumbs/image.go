package thumbs

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	_ "golang.org/x/image/webp" // register webp decoder
)

const (
	// DefaultThumbSize is the edge length of generated previews.
	DefaultThumbSize = 400
	// DefaultThumbQuality is the JPEG quality of generated previews.
	DefaultThumbQuality = 80

	// ThumbMimeType is the single format every preview is encoded to.
	ThumbMimeType = "image/jpeg"
)

// renderPreview decodes an image, corrects EXIF orientation, crops it to a
// centered size x size square (cover fit) and re-encodes it as JPEG.
func renderPreview(data []byte, size, quality int) (jpegBytes []byte, w, h int, err error) {
	orientation := readOrientation(bytes.NewReader(data))

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, err
	}
	img = applyOrientation(img, orientation)

	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	bounds := thumb.Bounds()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: quality}); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), bounds.Dx(), bounds.Dy(), nil
}

// readOrientation extracts the EXIF orientation tag, defaulting to 1
// (upright) when the image carries no usable EXIF block.
func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// applyOrientation transforms an image according to EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
