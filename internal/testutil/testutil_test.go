package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRoot(t *testing.T) {
	root, err := ProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}

func TestWriteModelFiles(t *testing.T) {
	dir := t.TempDir()
	modelPath, labelsPath := WriteModelFiles(t, dir, []string{"a", "b"})

	assert.True(t, FileExists(modelPath))
	data, err := os.ReadFile(labelsPath)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
	assert.Equal(t, dir, filepath.Dir(modelPath))
}

func TestRealModelFiles_FromEnvironment(t *testing.T) {
	dir := t.TempDir()
	WriteModelFiles(t, dir, DefaultLabels)
	t.Setenv(models.EnvModelsDir, dir)

	model, labels := RealModelFiles(t)
	assert.Equal(t, filepath.Join(dir, models.DefaultModelFile), model)
	assert.Equal(t, filepath.Join(dir, models.DefaultLabelsFile), labels)
}
