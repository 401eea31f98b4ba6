package classifier

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/engine/mock"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// randomImage builds a deterministic pseudo-random image from seed.
func randomImage(w, h int, seed int64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed)) //nolint:gosec // G404: test data only
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(r.Intn(256)),
				G: uint8(r.Intn(256)),
				B: uint8(r.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func genScores(n int) gopter.Gen {
	return gen.SliceOfN(n, gen.Float32Range(0, 1))
}

func TestRank_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("at most k results, non-increasing", prop.ForAll(
		func(scores []float32, k int) bool {
			labels := make([]string, len(scores))
			for i := range labels {
				labels[i] = string(rune('a' + i%26))
			}
			got := Rank(labels, scores, k)
			if len(got) != min(k, len(scores)) {
				return false
			}
			for i := 1; i < len(got); i++ {
				if got[i].Confidence > got[i-1].Confidence {
					return false
				}
			}
			return true
		},
		genScores(12),
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}

func TestRotate_FourQuarterTurnsIsIdentity(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rotating four times returns the input", prop.ForAll(
		func(w, h int, seed int64, degrees int) bool {
			src := randomImage(w, h, seed)
			out := src
			for range 4 {
				out = Rotate(out, degrees)
			}
			return bytes.Equal(src.Pix, out.Pix) && src.Bounds().Eq(out.Bounds())
		},
		gen.IntRange(1, 12),
		gen.IntRange(1, 12),
		gen.Int64(),
		gen.IntRange(-720, 720),
	))

	properties.TestingRun(t)
}

func TestCropResize_IdempotentOnModelSizedSquare(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("crop and resize leave a model sized square unchanged", prop.ForAll(
		func(side int, seed int64) bool {
			src := randomImage(side, side, seed)
			out := ResizeNearest(CenterSquareCrop(src), side, side)
			return bytes.Equal(src.Pix, out.Pix)
		},
		gen.IntRange(1, 32),
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestClassify_Deterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	eng := mock.New(8, 8, []float32{0.3, 0.1, 0.4, 0.2})
	c, err := New(eng, []string{"a", "b", "c", "d"}, DefaultConfig())
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	defer func() { _ = c.Close() }()

	properties.Property("identical input gives identical output", prop.ForAll(
		func(w, h int, seed int64, degrees int) bool {
			img := randomImage(w, h, seed)
			a, errA := c.Classify(img, degrees)
			b, errB := c.Classify(img, degrees)
			if errA != nil || errB != nil || len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 24),
		gen.IntRange(1, 24),
		gen.Int64(),
		gen.IntRange(0, 3).Map(func(q int) int { return q * 90 }),
	))

	properties.TestingRun(t)
}
