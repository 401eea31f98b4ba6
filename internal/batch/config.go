package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/plantex/internal/classifier"
)

// Config holds all configuration for batch classification.
type Config struct {
	// Parallel processing settings
	Workers int

	// File discovery settings
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	// ContinueOnError records per-image failures instead of aborting.
	ContinueOnError bool

	// Classification settings applied to every image
	TopK        int
	Orientation int
}

// ImageResult is the classification outcome for one file.
type ImageResult struct {
	File         string                   `json:"file"`
	Width        int                      `json:"width,omitempty"`
	Height       int                      `json:"height,omitempty"`
	Orientation  int                      `json:"orientation"`
	Results      []classifier.Recognition `json:"results"`
	Error        string                   `json:"error,omitempty"`
	ProcessingMs float64                  `json:"processing_ms"`
}

// Failed reports whether classification of this file failed.
func (r ImageResult) Failed() bool { return r.Error != "" }

// Result holds the result of batch processing.
type Result struct {
	Images      []ImageResult
	Duration    time.Duration
	WorkerCount int
}

// Stats summarizes a batch run.
type Stats struct {
	TotalImages      int           `json:"total_images"`
	ProcessedImages  int           `json:"processed_images"`
	FailedImages     int           `json:"failed_images"`
	WorkerCount      int           `json:"worker_count"`
	TotalDuration    time.Duration `json:"total_duration_ns"`
	AveragePerImage  time.Duration `json:"average_per_image_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// Stats calculates performance statistics for the run.
func (r *Result) Stats() Stats {
	st := Stats{
		TotalImages:   len(r.Images),
		WorkerCount:   r.WorkerCount,
		TotalDuration: r.Duration,
	}
	for _, img := range r.Images {
		if img.Failed() {
			st.FailedImages++
		} else {
			st.ProcessedImages++
		}
	}
	if st.ProcessedImages > 0 {
		st.AveragePerImage = r.Duration / time.Duration(st.ProcessedImages)
		if r.Duration > 0 {
			st.ThroughputPerSec = float64(st.ProcessedImages) / r.Duration.Seconds()
		}
	}
	return st
}

// FormatResults formats the batch results in the specified format.
func (r *Result) FormatResults(format string, precision int) (string, error) {
	return FormatResults(r.Images, format, precision)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, precision int, quiet bool) error {
	output, err := r.FormatResults(format, precision)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}

	_, _ = fmt.Fprint(w, output)
	return nil
}

// PrintStats prints processing statistics.
func (r *Result) PrintStats(w io.Writer) {
	st := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Total images: %d\n", st.TotalImages)
	_, _ = fmt.Fprintf(w, "  Processed: %d\n", st.ProcessedImages)
	_, _ = fmt.Fprintf(w, "  Failed: %d\n", st.FailedImages)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", st.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", st.TotalDuration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per image: %v\n", st.AveragePerImage.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Throughput: %.1f images/sec\n", st.ThroughputPerSec)
}
