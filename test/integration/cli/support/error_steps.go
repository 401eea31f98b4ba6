package support

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// theErrorShouldMention verifies the command error or its output names text.
func (testCtx *TestContext) theErrorShouldMention(text string) error {
	text = testCtx.substitute(text)
	lower := strings.ToLower(text)
	if testCtx.LastError != nil && strings.Contains(strings.ToLower(testCtx.LastError.Error()), lower) {
		return nil
	}
	if strings.Contains(strings.ToLower(testCtx.LastOutput), lower) {
		return nil
	}
	return fmt.Errorf("error does not mention %q\nError: %v\nOutput: %s", text, testCtx.LastError, testCtx.LastOutput)
}

// theErrorShouldMentionEither accepts either of two phrasings.
func (testCtx *TestContext) theErrorShouldMentionEither(a, b string) error {
	if testCtx.theErrorShouldMention(a) == nil || testCtx.theErrorShouldMention(b) == nil {
		return nil
	}
	return fmt.Errorf("error mentions neither %q nor %q\nError: %v", a, b, testCtx.LastError)
}

// theErrorShouldMentionUnknownFlag verifies flag parsing errors.
func (testCtx *TestContext) theErrorShouldMentionUnknownFlag() error {
	return testCtx.theErrorShouldMention("unknown flag")
}

// theExitCodeShouldBe verifies the exit status the binary would return.
func (testCtx *TestContext) theExitCodeShouldBe(code int) error {
	if testCtx.LastExitCode != code {
		return fmt.Errorf("exit code %d, want %d\nOutput: %s", testCtx.LastExitCode, code, testCtx.LastOutput)
	}
	return nil
}

// noStackTraceShouldBePrinted verifies errors are reported as single lines.
func (testCtx *TestContext) noStackTraceShouldBePrinted() error {
	for _, marker := range []string{"goroutine ", "panic:", ".go:"} {
		if strings.Contains(testCtx.LastOutput, marker) {
			return fmt.Errorf("output contains %q\nOutput: %s", marker, testCtx.LastOutput)
		}
	}
	return nil
}

// theOutputShouldContainVersionInformation verifies the version line.
func (testCtx *TestContext) theOutputShouldContainVersionInformation() error {
	for _, part := range []string{"plantex ", "commit:", "built:"} {
		if !strings.Contains(testCtx.LastOutput, part) {
			return fmt.Errorf("version output lacks %q: %s", part, testCtx.LastOutput)
		}
	}
	return nil
}

// theCommandShouldFailWith combines the failure and message checks.
func (testCtx *TestContext) theCommandShouldFailWith(text string) error {
	return errors.Join(testCtx.theCommandShouldFail(), testCtx.theErrorShouldMention(text))
}

// RegisterErrorSteps registers all error handling step definitions.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
	sc.Step(`^the error should mention "([^"]*)" or "([^"]*)"$`, testCtx.theErrorShouldMentionEither)
	sc.Step(`^the error should mention an unknown flag$`, testCtx.theErrorShouldMentionUnknownFlag)
	sc.Step(`^the exit code should be (\d+)$`, testCtx.theExitCodeShouldBe)
	sc.Step(`^no stack trace should be printed$`, testCtx.noStackTraceShouldBePrinted)
	sc.Step(`^the output should contain version information$`, testCtx.theOutputShouldContainVersionInformation)
	sc.Step(`^the command should fail with "([^"]*)"$`, testCtx.theCommandShouldFailWith)
}
