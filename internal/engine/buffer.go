package engine

import (
	"fmt"
	"math"
)

// Buffer is a typed, fixed-shape tensor backing store. Exactly one of
// Float32Data or Uint8Data is populated, matching Type.
type Buffer struct {
	Type        ElementType
	Shape       Shape
	Float32Data []float32
	Uint8Data   []uint8
}

// NewBuffer allocates a zeroed buffer for the given tensor description.
func NewBuffer(info TensorInfo) (*Buffer, error) {
	n := info.Shape.Elements()
	if n <= 0 {
		return nil, fmt.Errorf("invalid tensor shape %v", info.Shape)
	}
	b := &Buffer{Type: info.Type, Shape: info.Shape.Clone()}
	switch info.Type {
	case Float32:
		b.Float32Data = make([]float32, n)
	case Uint8:
		b.Uint8Data = make([]uint8, n)
	default:
		return nil, fmt.Errorf("unsupported element type %v", info.Type)
	}
	return b, nil
}

// Len returns the number of elements.
func (b *Buffer) Len() int {
	if b.Type == Uint8 {
		return len(b.Uint8Data)
	}
	return len(b.Float32Data)
}

// Set stores v at index i. Values written to a uint8 buffer are rounded and
// clamped to [0,255].
func (b *Buffer) Set(i int, v float32) {
	if b.Type == Uint8 {
		b.Uint8Data[i] = clampUint8(v)
		return
	}
	b.Float32Data[i] = v
}

// At returns element i as float32.
func (b *Buffer) At(i int) float32 {
	if b.Type == Uint8 {
		return float32(b.Uint8Data[i])
	}
	return b.Float32Data[i]
}

// Reset zeroes every element.
func (b *Buffer) Reset() {
	clear(b.Float32Data)
	clear(b.Uint8Data)
}

func clampUint8(v float32) uint8 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(float64(v)))
}
