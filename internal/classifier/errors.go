package classifier

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Classifier or Pool.
var ErrClosed = errors.New("classifier closed")

// ModelLoadError reports that the model could not be loaded or that its
// tensors do not describe a supported image classifier.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("model load failed: %v", e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// LabelMismatchError reports a label set whose length differs from the
// number of model outputs.
type LabelMismatchError struct {
	Labels  int
	Outputs int
}

func (e *LabelMismatchError) Error() string {
	return fmt.Sprintf("label count %d does not match model output size %d", e.Labels, e.Outputs)
}

// InvalidImageError reports an input image that cannot be classified.
type InvalidImageError struct {
	Reason string
}

func (e *InvalidImageError) Error() string {
	return "invalid image: " + e.Reason
}

// InferenceError wraps a failure reported by the inference engine.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// PreprocessError reports that the prepared pixels do not fit the input
// tensor. It indicates a geometry bug rather than bad input.
type PreprocessError struct {
	Err error
}

func (e *PreprocessError) Error() string {
	return fmt.Sprintf("preprocess failed: %v", e.Err)
}

func (e *PreprocessError) Unwrap() error { return e.Err }
