package classifier

import (
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quadrantImage paints each quadrant of a w x h image a distinct color.
func quadrantImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			var c color.NRGBA
			switch {
			case x < w/2 && y < h/2:
				c = color.NRGBA{R: 255, A: 255}
			case x >= w/2 && y < h/2:
				c = color.NRGBA{G: 255, A: 255}
			case x < w/2:
				c = color.NRGBA{B: 255, A: 255}
			default:
				c = color.NRGBA{R: 255, G: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestCenterSquareCrop(t *testing.T) {
	tests := []struct {
		w, h, side int
	}{
		{100, 60, 60},
		{60, 100, 60},
		{50, 50, 50},
		{1, 9, 1},
	}
	for _, tt := range tests {
		got := CenterSquareCrop(image.NewNRGBA(image.Rect(0, 0, tt.w, tt.h)))
		assert.Equal(t, tt.side, got.Bounds().Dx())
		assert.Equal(t, tt.side, got.Bounds().Dy())
	}
}

func TestCenterSquareCrop_KeepsCenter(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 9, 3))
	for y := range 3 {
		img.SetNRGBA(4, y, color.NRGBA{R: 200, A: 255})
	}
	got := CenterSquareCrop(img)
	require.Equal(t, 3, got.Bounds().Dx())
	assert.Equal(t, uint8(200), got.NRGBAAt(1, 1).R)
	assert.Equal(t, uint8(0), got.NRGBAAt(0, 1).R)
}

func TestResizeNearest_ExactSize(t *testing.T) {
	got := ResizeNearest(quadrantImage(10, 10), 4, 6)
	assert.Equal(t, 4, got.Bounds().Dx())
	assert.Equal(t, 6, got.Bounds().Dy())
	// nearest neighbor never blends colors
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, got.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, A: 255}, got.NRGBAAt(3, 5))
}

func TestRotationCount(t *testing.T) {
	tests := []struct {
		degrees int
		want    int
	}{
		{0, 0},
		{90, 1},
		{180, 2},
		{270, 3},
		{360, 0},
		{450, 1},
		{45, 0},
		{135, 1},
		{89, 0},
		{-90, 3},
		{-180, 2},
		{-270, 1},
		{-45, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RotationCount(tt.degrees), "degrees=%d", tt.degrees)
	}
}

func TestRotate_CounterClockwise(t *testing.T) {
	src := quadrantImage(4, 4)
	// top-right (green) moves to top-left after a counter-clockwise turn
	got := Rotate(src, 90)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, got.NRGBAAt(0, 0))

	half := Rotate(src, 180)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, A: 255}, half.NRGBAAt(0, 0))

	none := Rotate(src, 0)
	assert.Equal(t, src.Pix, none.Pix)
}

func TestPreprocess_ProducesModelSize(t *testing.T) {
	g := Geometry{Width: 8, Height: 6, Channels: 3, Layout: LayoutNHWC}
	for _, o := range []int{0, 90, 180, 270, -90, 45} {
		got := Preprocess(quadrantImage(40, 30), g, o)
		assert.Equal(t, 8, got.Bounds().Dx(), "orientation %d", o)
		assert.Equal(t, 6, got.Bounds().Dy(), "orientation %d", o)
	}
}

func TestFill_NHWCUnitScale(t *testing.T) {
	g := Geometry{Width: 2, Height: 1, Channels: 3, Layout: LayoutNHWC}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	buf, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 1, 2, 3}, Type: engine.Float32})
	require.NoError(t, err)

	require.NoError(t, UnitScale().Fill(img, g, buf))
	assert.InDeltaSlice(t, []float32{1, 0, 0.2, 0, 1, 0}, buf.Float32Data, 1e-6)
}

func TestFill_NCHWSigned(t *testing.T) {
	g := Geometry{Width: 2, Height: 1, Channels: 3, Layout: LayoutNCHW}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	buf, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 3, 1, 2}, Type: engine.Float32})
	require.NoError(t, err)

	require.NoError(t, SignedScale().Fill(img, g, buf))
	assert.InDeltaSlice(t, []float32{1, -1, -1, 1, 1, -1}, buf.Float32Data, 1e-6)
}

func TestFill_QuantizedPassThrough(t *testing.T) {
	g := Geometry{Width: 1, Height: 1, Channels: 3, Layout: LayoutNHWC}
	img := imaging.New(1, 1, color.NRGBA{R: 12, G: 34, B: 56, A: 255})
	buf, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 1, 1, 3}, Type: engine.Uint8})
	require.NoError(t, err)

	require.NoError(t, PassThrough().Fill(img, g, buf))
	assert.Equal(t, []uint8{12, 34, 56}, buf.Uint8Data)
}

func TestFill_Grayscale(t *testing.T) {
	g := Geometry{Width: 1, Height: 1, Channels: 1, Layout: LayoutNHWC}
	img := imaging.New(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	buf, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 1, 1, 1}, Type: engine.Float32})
	require.NoError(t, err)

	require.NoError(t, UnitScale().Fill(img, g, buf))
	assert.InDelta(t, 1.0, buf.Float32Data[0], 1e-4)
}

func TestFill_SizeMismatch(t *testing.T) {
	g := Geometry{Width: 2, Height: 2, Channels: 3, Layout: LayoutNHWC}
	buf, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 2, 2, 3}, Type: engine.Float32})
	require.NoError(t, err)

	var pe *PreprocessError
	err = UnitScale().Fill(image.NewNRGBA(image.Rect(0, 0, 3, 2)), g, buf)
	require.ErrorAs(t, err, &pe)

	small, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 2}, Type: engine.Float32})
	require.NoError(t, err)
	err = UnitScale().Fill(image.NewNRGBA(image.Rect(0, 0, 2, 2)), g, small)
	require.ErrorAs(t, err, &pe)
}
