package classifier

import (
	"fmt"

	"github.com/MeKo-Tech/plantex/internal/engine"
)

// Layout is the memory order of the image input tensor.
type Layout int

const (
	// LayoutNHWC is [1, height, width, channels], the usual mobile layout.
	LayoutNHWC Layout = iota
	// LayoutNCHW is [1, channels, height, width].
	LayoutNCHW
)

func (l Layout) String() string {
	if l == LayoutNCHW {
		return "NCHW"
	}
	return "NHWC"
}

// Geometry describes the tensors of a loaded model. It is read once at
// construction and never changes afterwards.
type Geometry struct {
	Width    int
	Height   int
	Channels int
	Layout   Layout

	Input  engine.TensorInfo
	Output engine.TensorInfo

	// Classes is the number of scores the model emits per image.
	Classes int
}

func isChannelDim(d int64) bool { return d == 1 || d == 3 }

// ResolveGeometry reads input 0 and output 0 of eng and derives the image
// size, channel layout and class count.
func ResolveGeometry(eng engine.Engine) (Geometry, error) {
	in, err := eng.InputInfo(0)
	if err != nil {
		return Geometry{}, fmt.Errorf("input info: %w", err)
	}
	out, err := eng.OutputInfo(0)
	if err != nil {
		return Geometry{}, fmt.Errorf("output info: %w", err)
	}

	s := in.Shape
	if len(s) != 4 {
		return Geometry{}, fmt.Errorf("expected 4D input, got %dD %v", len(s), s)
	}
	if s[0] != 1 {
		return Geometry{}, fmt.Errorf("expected batch size 1, got %d", s[0])
	}

	g := Geometry{Input: in, Output: out}
	switch {
	case isChannelDim(s[3]):
		g.Layout = LayoutNHWC
		g.Height, g.Width, g.Channels = int(s[1]), int(s[2]), int(s[3])
	case isChannelDim(s[1]):
		g.Layout = LayoutNCHW
		g.Channels, g.Height, g.Width = int(s[1]), int(s[2]), int(s[3])
	default:
		return Geometry{}, fmt.Errorf("cannot find a 1 or 3 channel dimension in input shape %v", s)
	}
	if g.Width <= 0 || g.Height <= 0 {
		return Geometry{}, fmt.Errorf("invalid input size %dx%d", g.Width, g.Height)
	}

	dims := out.Shape
	if len(dims) == 0 {
		return Geometry{}, fmt.Errorf("output %s has no dimensions", out.Name)
	}
	if len(dims) > 1 {
		if dims[0] != 1 {
			return Geometry{}, fmt.Errorf("expected output batch size 1, got %d", dims[0])
		}
		dims = dims[1:]
	}
	classes := int64(1)
	for _, d := range dims {
		if d <= 0 {
			return Geometry{}, fmt.Errorf("invalid output shape %v", out.Shape)
		}
		classes *= d
	}
	g.Classes = int(classes)
	return g, nil
}

// index returns the flat offset of pixel (x, y) channel c.
func (g Geometry) index(x, y, c int) int {
	if g.Layout == LayoutNCHW {
		return (c*g.Height+y)*g.Width + x
	}
	return (y*g.Width+x)*g.Channels + c
}
