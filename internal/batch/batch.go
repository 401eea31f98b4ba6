// Package batch classifies many image files in parallel and renders the
// results as text, JSON or CSV.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ProcessBatch discovers images under paths and classifies each of them with c.
func ProcessBatch(ctx context.Context, c Classifier, paths []string, config *Config) (*Result, error) {
	if c == nil {
		return nil, errors.New("classifier not initialized")
	}

	files, err := DiscoverImageFiles(paths, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	slog.Debug("batch started", "files", len(files), "workers", config.Workers)
	start := time.Now()
	images, err := processFiles(ctx, c, files, config)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	return &Result{
		Images:      images,
		Duration:    duration,
		WorkerCount: effectiveWorkers(config.Workers, len(files)),
	}, nil
}
