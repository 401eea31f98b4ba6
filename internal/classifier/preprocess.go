package classifier

import (
	"fmt"
	"image"

	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/disintegration/imaging"
)

// CenterSquareCrop returns the largest centered square region of img.
func CenterSquareCrop(img image.Image) *image.NRGBA {
	b := img.Bounds()
	side := min(b.Dx(), b.Dy())
	return imaging.CropCenter(img, side, side)
}

// ResizeNearest scales img to exactly width x height with nearest-neighbor
// sampling.
func ResizeNearest(img image.Image, width, height int) *image.NRGBA {
	return imaging.Resize(img, width, height, imaging.NearestNeighbor)
}

// RotationCount converts an orientation in degrees to a number of
// counter-clockwise quarter turns in 0..3. The degrees are divided by 90
// with truncation, so 135 counts as one turn and -90 as three.
func RotationCount(orientation int) int {
	k := orientation / 90
	return ((k % 4) + 4) % 4
}

// Rotate turns img counter-clockwise by RotationCount(orientation) quarter turns.
func Rotate(img image.Image, orientation int) *image.NRGBA {
	switch RotationCount(orientation) {
	case 1:
		return imaging.Rotate90(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate270(img)
	default:
		return imaging.Clone(img)
	}
}

// Preprocess runs crop, resize and rotation, producing an image of exactly
// g.Width x g.Height. For odd quarter turns the resize target is transposed
// so the rotated result still matches a non-square input.
func Preprocess(img image.Image, g Geometry, orientation int) *image.NRGBA {
	w, h := g.Width, g.Height
	if RotationCount(orientation)%2 == 1 {
		w, h = h, w
	}
	cropped := CenterSquareCrop(img)
	resized := ResizeNearest(cropped, w, h)
	return Rotate(resized, orientation)
}

// Fill writes the normalized pixels of img into buf in the layout given by g.
// Single channel models receive luminance.
func (p NormalizationPolicy) Fill(img *image.NRGBA, g Geometry, buf *engine.Buffer) error {
	b := img.Bounds()
	if b.Dx() != g.Width || b.Dy() != g.Height {
		return &PreprocessError{Err: fmt.Errorf("image is %dx%d, model expects %dx%d",
			b.Dx(), b.Dy(), g.Width, g.Height)}
	}
	if want := g.Width * g.Height * g.Channels; buf.Len() != want {
		return &PreprocessError{Err: fmt.Errorf("input buffer holds %d values, need %d", buf.Len(), want)}
	}

	for y := range g.Height {
		row := img.Pix[y*img.Stride:]
		for x := range g.Width {
			px := row[x*4 : x*4+3]
			r, gr, bl := float32(px[0]), float32(px[1]), float32(px[2])
			if g.Channels == 1 {
				lum := 0.299*r + 0.587*gr + 0.114*bl
				buf.Set(g.index(x, y, 0), p.Apply(lum, 0))
				continue
			}
			buf.Set(g.index(x, y, 0), p.Apply(r, 0))
			buf.Set(g.index(x, y, 1), p.Apply(gr, 1))
			buf.Set(g.index(x, y, 2), p.Apply(bl, 2))
		}
	}
	return nil
}
