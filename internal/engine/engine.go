// Package engine defines the contract between the classifier and the
// inference runtime that executes a model.
package engine

import (
	"errors"
	"fmt"
)

// ElementType is the scalar type stored in a tensor.
type ElementType int

const (
	// Float32 tensors carry IEEE-754 single precision values.
	Float32 ElementType = iota
	// Uint8 tensors carry quantized 8-bit values.
	Uint8
)

func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// Shape lists tensor dimensions, outermost first.
type Shape []int64

// Elements returns the number of scalars described by the shape.
func (s Shape) Elements() int {
	if len(s) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return int(n)
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name  string
	Shape Shape
	Type  ElementType
}

// ErrNoSuchTensor is returned when an input or output index is out of range.
var ErrNoSuchTensor = errors.New("no such tensor")

// Engine executes a loaded model. Implementations are not required to be
// safe for concurrent use; callers serialize Run on a single instance.
type Engine interface {
	InputInfo(index int) (TensorInfo, error)
	OutputInfo(index int) (TensorInfo, error)
	// Run reads input and overwrites output with the model result.
	Run(input, output *Buffer) error
	Close() error
}

// Opener creates an Engine from serialized model bytes.
type Opener func(modelData []byte) (Engine, error)
