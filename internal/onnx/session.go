// Package onnx implements engine.Engine on top of ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/plantex/internal/engine"
	ort "github.com/yalue/onnxruntime_go"
)

// Config controls session creation.
type Config struct {
	// LibraryPath points at the ONNX Runtime shared library. Empty means
	// auto-discovery.
	LibraryPath string
	// NumThreads sets intra-op parallelism; 0 keeps the runtime default.
	NumThreads int
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{}
}

// Session runs a single-input, single-output model with preallocated tensors.
type Session struct {
	session *ort.AdvancedSession
	inInfo  engine.TensorInfo
	outInfo engine.TensorInfo
	input   *boundTensor
	output  *boundTensor
}

var _ engine.Engine = (*Session)(nil)

// NewOpener returns an engine.Opener producing ONNX Runtime sessions.
func NewOpener(cfg Config) engine.Opener {
	return func(modelData []byte) (engine.Engine, error) {
		return NewSession(modelData, cfg)
	}
}

// NewSession loads a model from its serialized bytes.
func NewSession(modelData []byte, cfg Config) (*Session, error) {
	if len(modelData) == 0 {
		return nil, errors.New("empty model data")
	}
	if err := EnsureEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(modelData)
	if err != nil {
		return nil, fmt.Errorf("io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected io (in:%d out:%d)", len(inputs), len(outputs))
	}
	inInfo, err := toTensorInfo(inputs[0])
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	outInfo, err := toTensorInfo(outputs[0])
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	s := &Session{inInfo: inInfo, outInfo: outInfo}
	if s.input, err = newBoundTensor(inInfo); err != nil {
		return nil, err
	}
	if s.output, err = newBoundTensor(outInfo); err != nil {
		s.destroyTensors()
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("session opts: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying session options: %v\n", err)
		}
	}()
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			s.destroyTensors()
			return nil, fmt.Errorf("intra-op threads: %w", err)
		}
	}

	sess, err := ort.NewAdvancedSessionWithONNXData(modelData,
		[]string{inInfo.Name}, []string{outInfo.Name},
		[]ort.Value{s.input.value}, []ort.Value{s.output.value}, opts)
	if err != nil {
		s.destroyTensors()
		return nil, fmt.Errorf("session: %w", err)
	}
	s.session = sess

	slog.Debug("onnx session created",
		"input", inInfo.Name, "input_shape", inInfo.Shape, "input_type", inInfo.Type.String(),
		"output", outInfo.Name, "output_shape", outInfo.Shape, "output_type", outInfo.Type.String())
	return s, nil
}

// InputInfo implements engine.Engine.
func (s *Session) InputInfo(index int) (engine.TensorInfo, error) {
	if index != 0 {
		return engine.TensorInfo{}, fmt.Errorf("input %d: %w", index, engine.ErrNoSuchTensor)
	}
	return s.inInfo, nil
}

// OutputInfo implements engine.Engine.
func (s *Session) OutputInfo(index int) (engine.TensorInfo, error) {
	if index != 0 {
		return engine.TensorInfo{}, fmt.Errorf("output %d: %w", index, engine.ErrNoSuchTensor)
	}
	return s.outInfo, nil
}

// Run implements engine.Engine.
func (s *Session) Run(input, output *engine.Buffer) error {
	if s.session == nil {
		return errors.New("session closed")
	}
	if err := s.input.load(input); err != nil {
		return err
	}
	if err := s.session.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := s.output.store(output); err != nil {
		return err
	}
	if output.Type == engine.Float32 && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		lo, hi, mean := TensorStats(output.Float32Data)
		slog.Debug("onnx output", "shape", output.Shape, "min", lo, "max", hi, "mean", mean)
	}
	return nil
}

// Close releases the session and its tensors.
func (s *Session) Close() error {
	var errs []error
	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy session: %w", err))
		}
		s.session = nil
	}
	if err := s.destroyTensors(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) destroyTensors() error {
	var errs []error
	if err := s.input.destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy input tensor: %w", err))
	}
	if err := s.output.destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy output tensor: %w", err))
	}
	return errors.Join(errs...)
}
