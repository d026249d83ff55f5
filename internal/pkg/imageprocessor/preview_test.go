package imageprocessor

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(width, height int) image.Image {
	return imaging.New(width, height, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
}

func TestBuildPreviewScalesDown(t *testing.T) {
	preview := BuildPreview(testImage(2048, 1024))
	bounds := preview.Bounds()
	assert.Equal(t, PreviewSize, bounds.Dx())
	assert.Equal(t, PreviewSize/2, bounds.Dy())
}

func TestBuildPreviewKeepsSmallImages(t *testing.T) {
	preview := BuildPreview(testImage(300, 200))
	bounds := preview.Bounds()
	assert.Equal(t, 300, bounds.Dx())
	assert.Equal(t, 200, bounds.Dy())
}

func TestApplyOrientationRotates(t *testing.T) {
	img := testImage(40, 20)

	rotated := applyOrientation(img, 6)
	assert.Equal(t, 20, rotated.Bounds().Dx())
	assert.Equal(t, 40, rotated.Bounds().Dy())

	upright := applyOrientation(img, 1)
	assert.Equal(t, 40, upright.Bounds().Dx())
}

func TestDecodePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, testImage(10, 10), imaging.PNG))

	img, err := Decode(&buf, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())
}

func TestPreviewKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026/03/abc.png", "2026/03/previews/abc.webp"},
		{"abc.webp", "previews/abc.webp"},
		{"2026/03/noext", "2026/03/previews/noext.webp"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PreviewKey(tt.in))
	}
}

func TestContentTypeOf(t *testing.T) {
	assert.Equal(t, "image/webp", contentTypeOf("a/b.webp"))
	assert.Equal(t, "image/jpeg", contentTypeOf("x.jpeg"))
	assert.Equal(t, "application/octet-stream", contentTypeOf("x.bin"))
}
