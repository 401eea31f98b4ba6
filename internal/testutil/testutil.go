// Package testutil holds helpers shared by package tests: generated leaf
// images, throwaway model files and lookup of a real installed model.
package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/models"
)

// ProjectRoot returns the directory holding go.mod.
func ProjectRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("no caller information")
	}
	for dir := filepath.Dir(file); ; {
		if FileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above " + filepath.Dir(file))
		}
		dir = parent
	}
}

// RealModelFiles returns the paths of an installed classifier and its
// labels. It looks in $PLANTEX_MODELS_DIR, then in <project>/models, and
// skips the test when neither has both files.
func RealModelFiles(t *testing.T) (string, string) {
	t.Helper()

	var dirs []string
	if env := os.Getenv(models.EnvModelsDir); env != "" {
		dirs = append(dirs, env)
	}
	if root, err := ProjectRoot(); err == nil {
		dirs = append(dirs, filepath.Join(root, "models"))
	}
	for _, dir := range dirs {
		model := models.GetModelPath(dir, "")
		labels := models.GetLabelsPath(dir, "")
		if FileExists(model) && FileExists(labels) {
			return model, labels
		}
	}
	t.Skipf("no installed model in %v", dirs)
	return "", ""
}

// EnsureDir creates path and its parents.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
