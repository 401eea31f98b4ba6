package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"

	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/common"
	"github.com/MeKo-Tech/plantex/internal/utils"
)

// Classifier is what batch processing needs from a classifier pool.
type Classifier interface {
	ClassifyTopK(ctx context.Context, img image.Image, orientation, k int) ([]classifier.Recognition, error)
}

type fileJob struct {
	index int
	path  string
}

type fileResult struct {
	index  int
	result ImageResult
	err    error
}

// classifyFile loads one image and classifies it.
func classifyFile(ctx context.Context, c Classifier, path string, config *Config) (ImageResult, error) {
	res := ImageResult{File: path, Orientation: config.Orientation}
	timer := common.NewNamedTimer(path)

	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return res, fmt.Errorf("failed to load %s: %w", path, err)
	}
	res.Width, res.Height = meta.Width, meta.Height

	recs, err := c.ClassifyTopK(ctx, img, config.Orientation, config.TopK)
	if err != nil {
		return res, fmt.Errorf("classification failed for %s: %w", path, err)
	}
	res.Results = recs
	timer.Stop()
	res.ProcessingMs = timer.Milliseconds()
	return res, nil
}

// processFiles classifies files on a worker pool and returns results in
// input order. Unless ContinueOnError is set the first failure cancels
// the remaining work and is returned.
func processFiles(ctx context.Context, c Classifier, files []string, config *Config) ([]ImageResult, error) {
	workers := effectiveWorkers(config.Workers, len(files))

	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan fileJob)
	results := make(chan fileResult, len(files))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := classifyFile(ctx, c, job.path, config)
				results <- fileResult{index: job.index, result: res, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, path := range files {
			select {
			case jobs <- fileJob{index: i, path: path}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]ImageResult, len(files))
	for i, path := range files {
		ordered[i] = ImageResult{File: path, Orientation: config.Orientation}
	}

	var firstErr error
	for r := range results {
		ordered[r.index] = r.result
		if r.err == nil {
			continue
		}
		if config.ContinueOnError {
			slog.Warn("image failed", "file", r.result.File, "error", r.err)
			ordered[r.index].Error = r.err.Error()
			continue
		}
		if firstErr == nil && !errors.Is(r.err, context.Canceled) {
			firstErr = r.err
			cancel()
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return ordered, nil
}

// effectiveWorkers caps the worker count at the number of files. n <= 0
// workers means one per CPU.
func effectiveWorkers(n, files int) int {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return max(1, min(n, files))
}
