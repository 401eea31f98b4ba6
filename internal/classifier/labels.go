package classifier

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// removeBOM strips a UTF-8 byte order mark from the first line.
func removeBOM(line string, isFirstLine bool) string {
	if isFirstLine {
		return strings.TrimPrefix(line, "\uFEFF")
	}
	return line
}

// ParseLabels reads one label per line. Whitespace is trimmed, blank lines
// are skipped and every label is NFC normalized so visually identical
// names compare equal. Order is preserved.
func ParseLabels(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	labels := make([]string, 0, 256)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(removeBOM(scanner.Text(), lineNum == 1))
		if line == "" {
			continue
		}
		labels = append(labels, norm.NFC.String(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("label file is empty")
	}
	return labels, nil
}

// LoadLabels reads a label file from disk.
func LoadLabels(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("labels path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: Opening user-provided label file is expected
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing labels file: %v\n", err)
		}
	}()

	labels, err := ParseLabels(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return labels, nil
}
