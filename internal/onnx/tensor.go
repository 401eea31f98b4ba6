package onnx

import (
	"fmt"

	"github.com/MeKo-Tech/plantex/internal/engine"
	ort "github.com/yalue/onnxruntime_go"
)

// toElementType maps runtime element types onto the supported subset.
func toElementType(dt ort.TensorElementDataType) (engine.ElementType, error) {
	switch dt {
	case ort.TensorElementDataTypeFloat:
		return engine.Float32, nil
	case ort.TensorElementDataTypeUint8:
		return engine.Uint8, nil
	default:
		return 0, fmt.Errorf("unsupported tensor element type %v", dt)
	}
}

// resolveShape fixes a dynamic batch dimension to 1. Any other dynamic
// dimension cannot be resolved without running the model.
func resolveShape(dims ort.Shape) (engine.Shape, error) {
	out := make(engine.Shape, len(dims))
	for i, d := range dims {
		switch {
		case d > 0:
			out[i] = d
		case i == 0:
			out[i] = 1
		default:
			return nil, fmt.Errorf("dimension %d of %v is dynamic", i, dims)
		}
	}
	return out, nil
}

func toTensorInfo(info ort.InputOutputInfo) (engine.TensorInfo, error) {
	typ, err := toElementType(info.DataType)
	if err != nil {
		return engine.TensorInfo{}, fmt.Errorf("%s: %w", info.Name, err)
	}
	shape, err := resolveShape(info.Dimensions)
	if err != nil {
		return engine.TensorInfo{}, fmt.Errorf("%s: %w", info.Name, err)
	}
	return engine.TensorInfo{Name: info.Name, Shape: shape, Type: typ}, nil
}

// boundTensor is a runtime tensor whose memory is reused across runs.
type boundTensor struct {
	value ort.Value
	f32   []float32
	u8    []uint8
}

func newBoundTensor(info engine.TensorInfo) (*boundTensor, error) {
	shape := ort.NewShape(info.Shape...)
	switch info.Type {
	case engine.Float32:
		t, err := ort.NewEmptyTensor[float32](shape)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", info.Name, err)
		}
		return &boundTensor{value: t, f32: t.GetData()}, nil
	case engine.Uint8:
		t, err := ort.NewEmptyTensor[uint8](shape)
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", info.Name, err)
		}
		return &boundTensor{value: t, u8: t.GetData()}, nil
	default:
		return nil, fmt.Errorf("tensor %s: unsupported element type %v", info.Name, info.Type)
	}
}

func (b *boundTensor) load(src *engine.Buffer) error {
	switch {
	case b.f32 != nil && src.Type == engine.Float32 && len(src.Float32Data) == len(b.f32):
		copy(b.f32, src.Float32Data)
	case b.u8 != nil && src.Type == engine.Uint8 && len(src.Uint8Data) == len(b.u8):
		copy(b.u8, src.Uint8Data)
	default:
		return fmt.Errorf("input buffer %v[%d] does not match tensor", src.Type, src.Len())
	}
	return nil
}

func (b *boundTensor) store(dst *engine.Buffer) error {
	switch {
	case b.f32 != nil && dst.Type == engine.Float32 && len(dst.Float32Data) == len(b.f32):
		copy(dst.Float32Data, b.f32)
	case b.u8 != nil && dst.Type == engine.Uint8 && len(dst.Uint8Data) == len(b.u8):
		copy(dst.Uint8Data, b.u8)
	default:
		return fmt.Errorf("output buffer %v[%d] does not match tensor", dst.Type, dst.Len())
	}
	return nil
}

func (b *boundTensor) destroy() error {
	if b == nil || b.value == nil {
		return nil
	}
	err := b.value.Destroy()
	b.value = nil
	return err
}

// TensorStats computes min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}
