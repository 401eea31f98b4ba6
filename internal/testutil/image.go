package testutil

import (
	"image"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// Quadrant colors used by CreateQuadrantImage.
var (
	TopLeftColor     = color.NRGBA{R: 255, A: 255}
	TopRightColor    = color.NRGBA{G: 255, A: 255}
	BottomLeftColor  = color.NRGBA{B: 255, A: 255}
	BottomRightColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// CreateTestImage creates a solid image with the given dimensions and color.
func CreateTestImage(width, height int, c color.Color) *image.NRGBA {
	return imaging.New(width, height, c)
}

// CreateQuadrantImage creates an image split into four solid quadrants,
// which makes rotations and crops easy to check.
func CreateQuadrantImage(width, height int) *image.NRGBA {
	hw, hh := width/2, height/2
	img := imaging.New(width, height, BottomRightColor)
	img = imaging.Paste(img, imaging.New(hw, hh, TopLeftColor), image.Pt(0, 0))
	img = imaging.Paste(img, imaging.New(width-hw, hh, TopRightColor), image.Pt(hw, 0))
	img = imaging.Paste(img, imaging.New(hw, height-hh, BottomLeftColor), image.Pt(0, hh))
	return img
}

// CreateLeafImage draws a green ellipse on a soil-brown background, a cheap
// stand-in for a plant photo.
func CreateLeafImage(width, height int) *image.NRGBA {
	img := imaging.New(width, height, color.NRGBA{R: 110, G: 80, B: 50, A: 255})
	cx, cy := float64(width)/2, float64(height)/2
	rx, ry := float64(width)*0.4, float64(height)*0.25
	for y := range height {
		for x := range width {
			dx, dy := (float64(x)-cx)/rx, (float64(y)-cy)/ry
			if dx*dx+dy*dy <= 1 {
				shade := uint8(140 + 60*math.Abs(dx)) //nolint:gosec // G115: 140..200
				img.SetNRGBA(x, y, color.NRGBA{R: 40, G: shade, B: 50, A: 255})
			}
		}
	}
	return img
}

// SaveImage saves an image, choosing the encoder from the file extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)), "Failed to create directory for %s", path)
	require.NoError(t, imaging.Save(img, path), "Failed to save image %s", path)
}

// LoadImage loads an image from the specified path.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	img, err := imaging.Open(path)
	require.NoError(t, err, "Failed to open image %s", path)
	return img
}

// WriteLeafImages writes one leaf image per name into dir and returns the paths.
func WriteLeafImages(t *testing.T, dir string, names ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(names))
	for i, name := range names {
		p := filepath.Join(dir, name)
		SaveImage(t, CreateLeafImage(32+i*4, 24+i*2), p)
		paths = append(paths, p)
	}
	return paths
}

// CompareImages reports whether two images differ by at most tolerance,
// measured as mean per-pixel distance relative to the maximum.
func CompareImages(img1, img2 image.Image, tolerance float64) bool {
	bounds1 := img1.Bounds()
	if bounds1.Size() != img2.Bounds().Size() {
		return false
	}
	off := img2.Bounds().Min.Sub(bounds1.Min)

	var totalDiff, pixelCount float64
	for y := bounds1.Min.Y; y < bounds1.Max.Y; y++ {
		for x := bounds1.Min.X; x < bounds1.Max.X; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x+off.X, y+off.Y).RGBA()

			dr := float64(r1) - float64(r2)
			dg := float64(g1) - float64(g2)
			db := float64(b1) - float64(b2)
			da := float64(a1) - float64(a2)

			totalDiff += math.Sqrt(dr*dr + dg*dg + db*db + da*da)
			pixelCount++
		}
	}
	if pixelCount == 0 {
		return true
	}

	maxDiff := math.Sqrt(4 * 65535 * 65535)
	return (totalDiff/pixelCount)/maxDiff <= tolerance
}
