package cli_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/plantex/test/integration/cli/support"
	"github.com/cucumber/godog"
)

// initScenario gives every scenario its own TestContext with a private temp
// directory, mock engine and (optionally) a running server.
func initScenario(sc *godog.ScenarioContext) {
	tc, err := support.NewTestContext()
	if err != nil {
		panic(fmt.Sprintf("create test context: %v", err))
	}

	tc.RegisterCommonSteps(sc)
	tc.RegisterClassifySteps(sc)
	tc.RegisterServerSteps(sc)
	tc.RegisterErrorSteps(sc)

	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if err := tc.Cleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: scenario cleanup failed: %v\n", err)
		}
		return ctx, nil
	})
}

// TestFeatures runs each feature file as its own subtest. GODOG_FORMAT and
// GODOG_TAGS narrow the run from the environment.
func TestFeatures(t *testing.T) {
	features, err := filepath.Glob(filepath.Join("features", "*.feature"))
	if err != nil {
		t.Fatalf("glob features: %v", err)
	}
	if len(features) == 0 {
		t.Fatal("features/ contains no .feature files")
	}

	format := os.Getenv("GODOG_FORMAT")
	if format == "" {
		format = "pretty"
	}

	for _, path := range features {
		t.Run(strings.TrimSuffix(filepath.Base(path), ".feature"), func(t *testing.T) {
			status := godog.TestSuite{
				Name:                filepath.Base(path),
				ScenarioInitializer: initScenario,
				Options: &godog.Options{
					Format:   format,
					Tags:     os.Getenv("GODOG_TAGS"),
					Paths:    []string{path},
					Strict:   true,
					TestingT: t,
				},
			}.Run()
			if status != 0 {
				t.Fatalf("%s: godog exited with status %d", path, status)
			}
		})
	}
}

// TestMain isolates the suite from the developer's environment: an empty
// HOME and XDG_CONFIG_HOME, and no PLANTEX_* variables.
func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "plantex-home-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create temp home: %v\n", err)
		os.Exit(1)
	}
	_ = os.Setenv("HOME", home)
	_ = os.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, "PLANTEX_") {
			_ = os.Unsetenv(name)
		}
	}

	code := m.Run()
	_ = os.RemoveAll(home)
	os.Exit(code)
}
