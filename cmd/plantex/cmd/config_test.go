package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigShow(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "config", "show", "--log-level", "debug")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, env.modelsDir, doc["models_dir"])
	assert.Equal(t, "debug", doc["log_level"])
	cls, ok := doc["classifier"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, cls["top_k"])
}

func TestConfigShow_FromFile(t *testing.T) {
	env := newTestEnv(t)
	cfgFile := filepath.Join(env.dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("server:\n  port: 9191\n"), 0o600))

	out, _, err := env.run(t, "config", "show", "--config", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, out, "# config file: "+cfgFile)
	assert.Contains(t, out, "port: 9191")
}

func TestConfigShow_EnvironmentOverride(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("PLANTEX_SERVER_PORT", "7070")

	out, _, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 7070")
}

func TestConfigInit(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to plantex.yaml")

	data, err := os.ReadFile(filepath.Join(env.dir, "plantex.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "top_k")

	_, _, err = env.run(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = env.run(t, "config", "init", "--force")
	require.NoError(t, err)

	custom := filepath.Join(env.dir, "other.yaml")
	_, _, err = env.run(t, "config", "init", custom)
	require.NoError(t, err)
	assert.FileExists(t, custom)
}
