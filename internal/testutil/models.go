package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/stretchr/testify/require"
)

// DefaultLabels is a small label set for tests.
var DefaultLabels = []string{"rose", "tulip", "daisy", "fern", "cactus", "orchid"}

// WriteModelFiles writes placeholder model bytes and a label file under
// dir using the default file names, and returns both paths. The model is
// not a real network; pair it with a mock engine opener.
func WriteModelFiles(t *testing.T, dir string, labels []string) (string, string) {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	modelPath := filepath.Join(dir, models.DefaultModelFile)
	labelsPath := filepath.Join(dir, models.DefaultLabelsFile)

	require.NoError(t, os.WriteFile(modelPath, []byte("placeholder-model"), 0o600))
	require.NoError(t, os.WriteFile(labelsPath, []byte(strings.Join(labels, "\n")+"\n"), 0o600))
	return modelPath, labelsPath
}
