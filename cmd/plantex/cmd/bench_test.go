package cmd

import (
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchCommand(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.WriteLeafImages(t, env.dir, "leaf.png")[0]

	out, _, err := env.run(t, "bench", p, "--iterations", "4", "--warmup", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "classify "+p+" (32x24): 4 iterations")
	assert.Contains(t, out, "p95")
	assert.Contains(t, out, "memory:")
	// Warmup runs once per classifier in addition to the timed ones.
	assert.Equal(t, 6, env.engine.Runs())
}

func TestBenchCommand_Errors(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.WriteLeafImages(t, env.dir, "leaf.png")[0]

	_, _, err := env.run(t, "bench")
	require.Error(t, err)

	_, _, err = env.run(t, "bench", filepath.Join(env.dir, "missing.png"))
	require.Error(t, err)

	_, _, err = env.run(t, "bench", p, "--iterations", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations must be at least 1")
}
