package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plantex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadWithFile(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
classifier:
  top_k: 3
  softmax: true
  input_normalization: custom
  input_mean: [0.485, 0.456, 0.406]
  input_std: [0.229, 0.224, 0.225]
server:
  port: 9090
  rate_limit:
    enabled: true
    requests_per_minute: 10
batch:
  include: ["*.jpg", "*.png"]
`)

	cfg, err := NewIsolatedLoader().LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Classifier.TopK)
	assert.True(t, cfg.Classifier.Softmax)
	assert.Len(t, cfg.Classifier.InputMean, 3)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 10, cfg.Server.RateLimit.RequestsPerMinute)
	assert.Equal(t, []string{"*.jpg", "*.png"}, cfg.Batch.Include)

	// Untouched keys keep their defaults.
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, 4, cfg.Batch.Workers)
}

func TestLoadWithFile_Missing(t *testing.T) {
	_, err := NewIsolatedLoader().LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadWithFile_Invalid(t *testing.T) {
	path := writeConfigFile(t, "classifier:\n  top_k: 0\n")

	_, err := NewIsolatedLoader().LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")

	cfg, err := NewIsolatedLoader().LoadWithFileWithoutValidation(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Classifier.TopK)
}

func TestLoadWithFile_Malformed(t *testing.T) {
	path := writeConfigFile(t, "classifier: [unterminated\n")

	_, err := NewIsolatedLoader().LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PLANTEX_CLASSIFIER_TOP_K", "2")
	t.Setenv("PLANTEX_SERVER_PORT", "7070")
	t.Setenv("PLANTEX_LOG_LEVEL", "warn")

	cfg, err := NewIsolatedLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Classifier.TopK)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	loader := NewIsolatedLoader()
	cfg, err := loader.LoadWithFileWithoutValidation("")
	require.NoError(t, err)

	assert.Empty(t, loader.GetConfigFileUsed())
	assert.Equal(t, DefaultConfig().Classifier.TopK, cfg.Classifier.TopK)
}

func TestGenerateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.yaml")
	require.NoError(t, GenerateDefaultConfigFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# plantex configuration")
	assert.Contains(t, string(data), "top_k: 5")

	cfg, err := NewIsolatedLoader().LoadWithFile(path)
	require.NoError(t, err)
	want := DefaultConfig()
	assert.Equal(t, want.Classifier, withoutSlices(cfg.Classifier))
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Output, cfg.Output)
	assert.Equal(t, want.Runtime, cfg.Runtime)
}

// withoutSlices maps empty decoded slices back to nil.
func withoutSlices(c ClassifierConfig) ClassifierConfig {
	if len(c.InputMean) == 0 {
		c.InputMean = nil
	}
	if len(c.InputStd) == 0 {
		c.InputStd = nil
	}
	return c
}

func TestLoaderSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	loader := NewIsolatedLoader()
	loader.GetViper().Set("log_level", "error")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)

	settings := loader.Settings()
	assert.Contains(t, settings, "log_level")
	assert.Contains(t, settings, "classifier")
}

func TestLoad_EnvironmentReachesEmptyDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PLANTEX_RUNTIME_LIBRARY_PATH", "/opt/onnxruntime/libonnxruntime.so")
	t.Setenv("PLANTEX_OUTPUT_FILE", "results.json")

	cfg, err := NewIsolatedLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "/opt/onnxruntime/libonnxruntime.so", cfg.Runtime.LibraryPath)
	assert.Equal(t, "results.json", cfg.Output.File)
}

func TestGetConfigSearchPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	paths := GetConfigSearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])
	assert.Equal(t, "/xdg/plantex", paths[1])
	assert.Equal(t, "/etc/plantex", paths[len(paths)-1])
}
