package support

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/MeKo-Tech/plantex/internal/engine/mock"
	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/MeKo-Tech/plantex/internal/server"
	"github.com/gorilla/websocket"
)

// TestContext holds the state for integration tests.
type TestContext struct {
	// Command execution state
	LastCommand  string
	LastOutput   string
	LastStdout   string
	LastError    error
	LastExitCode int
	LastDuration time.Duration

	// Test environment
	TempDir   string
	ModelsDir string
	Labels    []string
	Engine    *mock.Engine
	envBackup map[string]*string

	// Server management
	HTTPServer *httptest.Server
	APIServer  *server.Server
	WSConn     *websocket.Conn

	// HTTP response state
	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
	LastWSMessages     []map[string]any
}

// keepOpen lets one mock engine back every classifier a scenario creates.
type keepOpen struct{ *mock.Engine }

func (keepOpen) Close() error { return nil }

// NewTestContext creates a new test context with its own temporary directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "plantex-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &TestContext{
		TempDir:         tempDir,
		ModelsDir:       filepath.Join(tempDir, "models"),
		envBackup:       map[string]*string{},
		LastHTTPHeaders: map[string]string{},
	}, nil
}

// Opener returns an engine opener serving the scenario's mock engine.
func (testCtx *TestContext) Opener() engine.Opener {
	return func([]byte) (engine.Engine, error) {
		if testCtx.Engine == nil {
			return nil, errors.New("no model configured for scenario")
		}
		return keepOpen{testCtx.Engine}, nil
	}
}

// SetEnv sets an environment variable for the rest of the scenario.
func (testCtx *TestContext) SetEnv(name, value string) error {
	if _, saved := testCtx.envBackup[name]; !saved {
		if old, ok := os.LookupEnv(name); ok {
			testCtx.envBackup[name] = &old
		} else {
			testCtx.envBackup[name] = nil
		}
	}
	return os.Setenv(name, value)
}

// Path resolves a scenario-relative path inside the temporary directory.
func (testCtx *TestContext) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(testCtx.TempDir, name)
}

// substitute expands {tmp} and {models} placeholders.
func (testCtx *TestContext) substitute(s string) string {
	return strings.NewReplacer("{tmp}", testCtx.TempDir, "{models}", testCtx.ModelsDir).Replace(s)
}

// writeModel writes placeholder model and label files for labels.
func (testCtx *TestContext) writeModel(dir string, labels []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, models.DefaultModelFile), []byte("mock-onnx"), 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, models.DefaultLabelsFile), []byte(strings.Join(labels, "\n")+"\n"), 0o600)
}

// Cleanup stops servers, restores the environment and removes temporary files.
func (testCtx *TestContext) Cleanup() error {
	var errs []error

	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}

	for name, old := range testCtx.envBackup {
		var err error
		if old == nil {
			err = os.Unsetenv(name)
		} else {
			err = os.Setenv(name, *old)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err))
	}

	return errors.Join(errs...)
}

// StopServer stops the scenario's HTTP server, if any.
func (testCtx *TestContext) StopServer() error {
	if testCtx.WSConn != nil {
		_ = testCtx.WSConn.Close()
		testCtx.WSConn = nil
	}
	if testCtx.HTTPServer != nil {
		testCtx.HTTPServer.Close()
		testCtx.HTTPServer = nil
	}
	if testCtx.APIServer != nil {
		err := testCtx.APIServer.Close()
		testCtx.APIServer = nil
		return err
	}
	return nil
}
