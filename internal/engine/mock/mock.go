// Package mock provides an in-memory Engine that returns a fixed output
// vector. It lets classifier logic be tested without a model runtime.
package mock

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/MeKo-Tech/plantex/internal/engine"
)

// Engine replays a canned output on every Run.
type Engine struct {
	Input  engine.TensorInfo
	Output engine.TensorInfo
	Scores []float32

	// RunErr, when set, is returned from every Run call.
	RunErr error
	// OnRun observes the input buffer before the output is written.
	OnRun func(input *engine.Buffer)

	runs   atomic.Int64
	closed atomic.Bool
}

// New returns a float32 NHWC engine of the given input size whose output
// has one element per score.
func New(width, height int, scores []float32) *Engine {
	return &Engine{
		Input: engine.TensorInfo{
			Name:  "input",
			Shape: engine.Shape{1, int64(height), int64(width), 3},
			Type:  engine.Float32,
		},
		Output: engine.TensorInfo{
			Name:  "output",
			Shape: engine.Shape{1, int64(len(scores))},
			Type:  engine.Float32,
		},
		Scores: scores,
	}
}

// NewQuantized returns a uint8 in / uint8 out engine, the layout of a
// quantized mobile classifier.
func NewQuantized(width, height int, scores []uint8) *Engine {
	e := New(width, height, nil)
	e.Input.Type = engine.Uint8
	e.Output = engine.TensorInfo{
		Name:  "output",
		Shape: engine.Shape{1, int64(len(scores))},
		Type:  engine.Uint8,
	}
	e.Scores = make([]float32, len(scores))
	for i, s := range scores {
		e.Scores[i] = float32(s)
	}
	return e
}

// Opener returns an engine.Opener that always yields e.
func (e *Engine) Opener() engine.Opener {
	return func([]byte) (engine.Engine, error) { return e, nil }
}

// InputInfo implements engine.Engine.
func (e *Engine) InputInfo(index int) (engine.TensorInfo, error) {
	if index != 0 {
		return engine.TensorInfo{}, fmt.Errorf("input %d: %w", index, engine.ErrNoSuchTensor)
	}
	return e.Input, nil
}

// OutputInfo implements engine.Engine.
func (e *Engine) OutputInfo(index int) (engine.TensorInfo, error) {
	if index != 0 {
		return engine.TensorInfo{}, fmt.Errorf("output %d: %w", index, engine.ErrNoSuchTensor)
	}
	return e.Output, nil
}

// Run implements engine.Engine.
func (e *Engine) Run(input, output *engine.Buffer) error {
	if e.closed.Load() {
		return errors.New("engine closed")
	}
	e.runs.Add(1)
	if e.OnRun != nil {
		e.OnRun(input)
	}
	if e.RunErr != nil {
		return e.RunErr
	}
	if output.Len() != len(e.Scores) {
		return fmt.Errorf("output length %d, have %d scores", output.Len(), len(e.Scores))
	}
	for i, s := range e.Scores {
		output.Set(i, s)
	}
	return nil
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.closed.Store(true)
	return nil
}

// Runs reports how many times Run was called.
func (e *Engine) Runs() int { return int(e.runs.Load()) }

// Closed reports whether Close was called.
func (e *Engine) Closed() bool { return e.closed.Load() }

// PeakedScores builds n scores where index peak holds value and the rest
// share the remaining mass evenly.
func PeakedScores(n, peak int, value float32) []float32 {
	if n <= 0 {
		return nil
	}
	out := make([]float32, n)
	rest := float32(0)
	if n > 1 {
		rest = (1 - value) / float32(n-1)
	}
	for i := range out {
		out[i] = rest
	}
	if peak >= 0 && peak < n {
		out[peak] = value
	}
	return out
}

// Logits converts probabilities into log space so softmax recovers them.
func Logits(probs []float32) []float32 {
	out := make([]float32, len(probs))
	for i, p := range probs {
		if p <= 0 {
			out[i] = -30
			continue
		}
		out[i] = float32(math.Log(float64(p)))
	}
	return out
}
