package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/engine/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModelFiles(t *testing.T, model []byte, labels string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.onnx")
	labelsPath := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(modelPath, model, 0o600))
	require.NoError(t, os.WriteFile(labelsPath, []byte(labels), 0o600))
	return modelPath, labelsPath
}

func TestNewFactory(t *testing.T) {
	modelPath, labelsPath := writeModelFiles(t, []byte("model"), "rose\ntulip\n")
	eng := mock.New(4, 4, []float32{0.3, 0.7})

	factory, err := NewFactory(modelPath, labelsPath, DefaultConfig(), eng.Opener())
	require.NoError(t, err)

	c, err := factory()
	require.NoError(t, err)
	assert.Equal(t, []string{"rose", "tulip"}, c.Labels())

	got, err := c.Classify(randomImage(6, 6, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, "tulip", got[0].Label)
}

func TestNewFactory_MissingModel(t *testing.T) {
	_, labelsPath := writeModelFiles(t, []byte("model"), "rose\n")

	_, err := NewFactory(filepath.Join(t.TempDir(), "missing.onnx"), labelsPath, DefaultConfig(), nil)
	require.Error(t, err)
	var mle *ModelLoadError
	assert.True(t, errors.As(err, &mle))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewFactory_EmptyModel(t *testing.T) {
	modelPath, labelsPath := writeModelFiles(t, nil, "rose\n")

	_, err := NewFactory(modelPath, labelsPath, DefaultConfig(), nil)
	var mle *ModelLoadError
	require.ErrorAs(t, err, &mle)
	assert.Contains(t, err.Error(), "empty")
}

func TestNewFactory_BadLabels(t *testing.T) {
	modelPath, _ := writeModelFiles(t, []byte("model"), "")

	_, err := NewFactory(modelPath, filepath.Join(t.TempDir(), "nope.txt"), DefaultConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open labels")
}

func TestLoadPool(t *testing.T) {
	modelPath, labelsPath := writeModelFiles(t, []byte("model"), "a\nb\nc\n")
	eng := mock.New(3, 3, []float32{0.1, 0.2, 0.7})

	p, err := LoadPool(1, modelPath, labelsPath, DefaultConfig(), eng.Opener())
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	got, err := p.Classify(context.Background(), randomImage(4, 4, 2), 90)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Label)
}

func TestLoadPool_LabelMismatch(t *testing.T) {
	modelPath, labelsPath := writeModelFiles(t, []byte("model"), "a\nb\n")
	eng := mock.New(3, 3, []float32{0.1, 0.2, 0.7})

	_, err := LoadPool(1, modelPath, labelsPath, DefaultConfig(), eng.Opener())
	var lme *LabelMismatchError
	require.ErrorAs(t, err, &lme)
	assert.True(t, eng.Closed())
}
