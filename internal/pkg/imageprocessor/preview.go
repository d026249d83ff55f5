package imageprocessor

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
)

// Preview settings
const (
	PreviewSize    = 512
	PreviewQuality = 80
)

func init() {
	// Register Nikon and Canon maker notes
	exif.RegisterParsers(mknote.All...)
}

// Decode reads an image in any supported upload format. JPEG images are
// rotated into their EXIF orientation so previews never come out sideways.
func Decode(r io.Reader, contentType string) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading image data: %w", err)
	}

	if strings.Contains(contentType, "webp") {
		img, err := webp.Decode(bytes.NewReader(data), &decoder.Options{})
		if err != nil {
			return nil, fmt.Errorf("error decoding webp image: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error decoding image: %w", err)
	}
	return applyOrientation(img, orientationOf(data)), nil
}

// orientationOf reads the EXIF orientation tag, 1 (upright) when absent.
func orientationOf(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// applyOrientation maps the eight EXIF orientations onto flips and rotations.
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

// BuildPreview scales an image down to fit the preview box, keeping the
// aspect ratio. Images already small enough pass through unscaled.
func BuildPreview(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= PreviewSize && bounds.Dy() <= PreviewSize {
		return img
	}
	return imaging.Fit(img, PreviewSize, PreviewSize, imaging.Lanczos)
}

// EncodeWebP writes an image as lossy WebP with the preview quality.
func EncodeWebP(w io.Writer, img image.Image) error {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, PreviewQuality)
	if err != nil {
		return fmt.Errorf("error creating webp encoder options: %w", err)
	}
	if err := webp.Encode(w, img, options); err != nil {
		return fmt.Errorf("error encoding webp image: %w", err)
	}
	return nil
}
