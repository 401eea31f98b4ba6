package classifier

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/plantex/internal/engine"
)

// NewFactory reads the model and the label file once and returns a Factory
// that opens a fresh engine for every classifier it builds.
func NewFactory(modelPath, labelsPath string, cfg Config, open engine.Opener) (Factory, error) {
	data, err := os.ReadFile(modelPath) //nolint:gosec // G304: model path comes from configuration
	if err != nil {
		return nil, &ModelLoadError{Err: fmt.Errorf("read model %s: %w", modelPath, err)}
	}
	if len(data) == 0 {
		return nil, &ModelLoadError{Err: fmt.Errorf("model file is empty: %s", modelPath)}
	}
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("model files loaded", "model", modelPath, "labels", labelsPath,
		"model_bytes", len(data), "label_count", len(labels))

	return func() (*Classifier, error) {
		return Open(data, labels, cfg, open)
	}, nil
}

// LoadPool builds a Pool of size classifiers from files on disk.
func LoadPool(size int, modelPath, labelsPath string, cfg Config, open engine.Opener) (*Pool, error) {
	factory, err := NewFactory(modelPath, labelsPath, cfg, open)
	if err != nil {
		return nil, err
	}
	return NewPool(size, factory)
}
