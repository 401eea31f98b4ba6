package support

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/plantex/cmd/plantex/cmd"
	"github.com/MeKo-Tech/plantex/internal/engine/mock"
	"github.com/MeKo-Tech/plantex/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
)

// aPlantModelWithLabels writes model files for labels and configures the
// mock engine to favour the first of them.
func (testCtx *TestContext) aPlantModelWithLabels(labelList string) error {
	labels := splitList(labelList)
	if len(labels) == 0 {
		return errors.New("no labels given")
	}
	if err := testCtx.writeModel(testCtx.ModelsDir, labels); err != nil {
		return err
	}
	testCtx.Labels = labels
	testCtx.Engine = mock.New(8, 8, mock.PeakedScores(len(labels), 0, 0.9))
	return nil
}

// theModelFavours makes label the most confident class.
func (testCtx *TestContext) theModelFavours(label string, confidence float64) error {
	for i, l := range testCtx.Labels {
		if l == label {
			testCtx.Engine.Scores = mock.PeakedScores(len(testCtx.Labels), i, float32(confidence))
			return nil
		}
	}
	return fmt.Errorf("label %q is not in the model's label file", label)
}

// theModelOutputSizeIs changes the number of model outputs so it no longer
// matches the label file.
func (testCtx *TestContext) theModelOutputSizeIs(n int) error {
	if testCtx.Engine == nil {
		return errors.New("no model configured")
	}
	testCtx.Engine.Output.Shape = []int64{1, int64(n)}
	testCtx.Engine.Scores = mock.PeakedScores(n, 0, 0.9)
	return nil
}

// aLeafImage writes a generated leaf photograph.
func (testCtx *TestContext) aLeafImage(name string) error {
	return testCtx.aLeafImageOfSize(name, 64, 48)
}

func (testCtx *TestContext) aLeafImageOfSize(name string, width, height int) error {
	path := testCtx.Path(name)
	if err := testutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := imaging.Save(testutil.CreateLeafImage(width, height), path); err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	return nil
}

// aCorruptImage writes a file with an image extension but no image data.
func (testCtx *TestContext) aCorruptImage(name string) error {
	path := testCtx.Path(name)
	if err := testutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("definitely not an image"), 0o600)
}

// aConfigFileWith writes a configuration file from a doc string.
func (testCtx *TestContext) aConfigFileWith(name string, content *godog.DocString) error {
	path := testCtx.Path(name)
	return os.WriteFile(path, []byte(testCtx.substitute(content.Content)), 0o600)
}

// theEnvironmentVariableIsSetTo sets a process environment variable.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	return testCtx.SetEnv(name, testCtx.substitute(value))
}

// iRunCommand runs the plantex CLI in-process. The scenario's models
// directory is passed unless the command names one itself.
func (testCtx *TestContext) iRunCommand(command string) error {
	return testCtx.run(command, true)
}

// iRunCommandWithoutModelsDir leaves models directory resolution to the
// configuration sources.
func (testCtx *TestContext) iRunCommandWithoutModelsDir(command string) error {
	return testCtx.run(command, false)
}

func (testCtx *TestContext) run(command string, withModelsDir bool) error {
	command = testCtx.substitute(command)
	testCtx.LastCommand = command

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	if parts[0] != "plantex" {
		return fmt.Errorf("unsupported command %q", parts[0])
	}
	args := parts[1:]
	if withModelsDir && !strings.Contains(command, "--models-dir") {
		args = append(args, "--models-dir", testCtx.ModelsDir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	root := cmd.NewRootCommand(cmd.WithEngineOpener(testCtx.Opener()), cmd.WithLogOutput(io.Discard))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	start := time.Now()
	err := root.ExecuteContext(ctx)
	testCtx.LastDuration = time.Since(start)
	testCtx.LastStdout = stdout.String()
	testCtx.LastOutput = stdout.String() + stderr.String()
	testCtx.LastError = err
	testCtx.LastExitCode = 0
	if err != nil {
		testCtx.LastOutput += fmt.Sprintf("Error: %v\n", err)
		testCtx.LastExitCode = 1
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies the output contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substitute(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldBeValidJSON verifies stdout is a single JSON document.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	var v any
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &v); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	return nil
}

// theOutputShouldBeCSVWithRows verifies stdout is CSV with n data rows.
func (testCtx *TestContext) theOutputShouldBeCSVWithRows(n int) error {
	rows, err := csv.NewReader(strings.NewReader(testCtx.LastStdout)).ReadAll()
	if err != nil {
		return fmt.Errorf("output is not valid CSV: %w\nOutput: %s", err, testCtx.LastStdout)
	}
	if len(rows) == 0 || strings.Join(rows[0], ",") != "file,rank,label,confidence,error" {
		return fmt.Errorf("missing CSV header\nOutput: %s", testCtx.LastStdout)
	}
	if got := len(rows) - 1; got != n {
		return fmt.Errorf("expected %d CSV rows, got %d\nOutput: %s", n, got, testCtx.LastStdout)
	}
	return nil
}

// theJSONFieldShouldBe checks a dotted path such as "images.0.results.0.label".
func (testCtx *TestContext) theJSONFieldShouldBe(path, expected string) error {
	return jsonFieldEquals(testCtx.LastStdout, path, testCtx.substitute(expected))
}

// theFileShouldExist verifies that a file was written.
func (testCtx *TestContext) theFileShouldExist(name string) error {
	if !testutil.FileExists(testCtx.Path(testCtx.substitute(name))) {
		return fmt.Errorf("file %s does not exist", name)
	}
	return nil
}

// theFileShouldContain verifies a file's content.
func (testCtx *TestContext) theFileShouldContain(name, content string) error {
	data, err := os.ReadFile(testCtx.Path(testCtx.substitute(name)))
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), testCtx.substitute(content)) {
		return fmt.Errorf("file %s does not contain '%s'\nContent: %s", name, content, data)
	}
	return nil
}

// jsonFieldEquals walks a dotted path through a JSON document and compares
// the value found with expected, formatting numbers without exponent.
func jsonFieldEquals(doc, path, expected string) error {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return fmt.Errorf("invalid JSON: %w\n%s", err, doc)
	}
	for _, key := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return fmt.Errorf("field %q not found in %s", key, path)
			}
			v = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return fmt.Errorf("index %q out of range in %s", key, path)
			}
			v = node[i]
		default:
			return fmt.Errorf("cannot descend into %s at %q", path, key)
		}
	}

	var got string
	switch val := v.(type) {
	case string:
		got = val
	case float64:
		got = strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		got = "null"
	default:
		got = fmt.Sprint(val)
	}
	if got != expected {
		return fmt.Errorf("%s = %q, want %q", path, got, expected)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RegisterCommonSteps registers setup, command and output steps.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	// Setup
	sc.Step(`^a plant model with labels "([^"]*)"$`, testCtx.aPlantModelWithLabels)
	sc.Step(`^the model favours "([^"]*)" with confidence ([0-9.]+)$`, testCtx.theModelFavours)
	sc.Step(`^the model has (\d+) outputs$`, testCtx.theModelOutputSizeIs)
	sc.Step(`^a leaf image "([^"]*)"$`, testCtx.aLeafImage)
	sc.Step(`^a leaf image "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aLeafImageOfSize)
	sc.Step(`^a corrupt image "([^"]*)"$`, testCtx.aCorruptImage)
	sc.Step(`^a config file "([^"]*)" with:$`, testCtx.aConfigFileWith)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)

	// Commands
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^I run "([^"]*)" without a models directory$`, testCtx.iRunCommandWithoutModelsDir)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)

	// Output
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the output should be CSV with (\d+) rows?$`, testCtx.theOutputShouldBeCSVWithRows)
	sc.Step(`^the JSON field "([^"]*)" should be "([^"]*)"$`, testCtx.theJSONFieldShouldBe)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}
