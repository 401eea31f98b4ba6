package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Output formats understood by FormatResults.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// DefaultPrecision is the number of confidence decimals used when none is given.
const DefaultPrecision = 4

// FormatResults renders classification results as text, json or csv.
// An empty format means text.
func FormatResults(images []ImageResult, format string, precision int) (string, error) {
	if precision < 0 {
		precision = DefaultPrecision
	}
	switch format {
	case FormatJSON:
		return formatJSON(images)
	case FormatCSV:
		return formatCSV(images, precision)
	case FormatText, "":
		return formatText(images, precision), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatJSON(images []ImageResult) (string, error) {
	doc := struct {
		Images []ImageResult `json:"images"`
	}{Images: images}
	if doc.Images == nil {
		doc.Images = []ImageResult{}
	}

	bts, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

func formatCSV(images []ImageResult, precision int) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)

	rows := [][]string{{"file", "rank", "label", "confidence", "error"}}
	for _, img := range images {
		if img.Failed() || len(img.Results) == 0 {
			rows = append(rows, []string{img.File, "0", "", "", img.Error})
			continue
		}
		for i, r := range img.Results {
			rows = append(rows, []string{
				img.File,
				strconv.Itoa(i + 1),
				r.Label,
				strconv.FormatFloat(float64(r.Confidence), 'f', precision, 32),
				"",
			})
		}
	}

	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

func formatText(images []ImageResult, precision int) string {
	var output strings.Builder
	for i, img := range images {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", img.File)
		if img.Failed() {
			fmt.Fprintf(&output, "  error: %s\n", img.Error)
			continue
		}
		if len(img.Results) == 0 {
			output.WriteString("  (no results)\n")
			continue
		}
		width := 0
		for _, r := range img.Results {
			width = max(width, len(r.Label))
		}
		for j, r := range img.Results {
			fmt.Fprintf(&output, "  %d. %-*s  %.*f\n", j+1, width, r.Label, precision, r.Confidence)
		}
	}
	return output.String()
}
