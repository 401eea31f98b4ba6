package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/plantex/internal/batch"
	"github.com/spf13/cobra"
)

func newBatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [paths...]",
		Short: "Classify many images in parallel",
		Long: `Classify all images found in the given files and directories using a
pool of independent classifiers.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  plantex batch photos/
  plantex batch photos/ --recursive --workers 8 --format csv --output results.csv
  plantex batch a.jpg b.png --include "*.jpg" --continue-on-error`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args)
		},
	}

	f := cmd.Flags()
	f.IntP("workers", "w", 4, "number of parallel workers")
	f.BoolP("recursive", "r", false, "recursively scan directories")
	f.StringSlice("include", nil, "file patterns to include (e.g. *.jpg)")
	f.StringSlice("exclude", nil, "file patterns to exclude")
	f.Bool("continue-on-error", false, "record failed images instead of stopping")
	f.Int("orientation", 0, "clockwise rotation applied to every image in degrees")
	f.IntP("top-k", "k", 5, "number of labels to report per image")
	f.StringP("format", "f", "text", "output format: text, json, csv")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.Int("precision", batch.DefaultPrecision, "confidence decimals in text and csv output")
	f.String("model", "", "model file (default: <models-dir>/plantex_classifier.onnx)")
	f.String("labels", "", "label file (default: <models-dir>/plantex_labels.txt)")
	f.Bool("softmax", false, "apply softmax to float model outputs")
	f.Bool("quiet", false, "suppress informational output")
	f.Bool("stats", false, "print processing statistics")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, args []string) error {
	quiet, _ := cmd.Flags().GetBool("quiet")
	showStats, _ := cmd.Flags().GetBool("stats")
	orientation, _ := cmd.Flags().GetInt("orientation")

	bc := a.cfg.ToBatchConfig()
	bc.Orientation = orientation

	// One classifier per worker; more would sit idle.
	pool, err := a.openPool(max(a.cfg.Classifier.Instances, bc.Workers))
	if err != nil {
		return err
	}
	defer closePool(pool)

	result, err := batch.ProcessBatch(cmd.Context(), pool, args, &bc)
	if err != nil {
		return err
	}

	out := a.cfg.Output
	if err := result.SaveResults(cmd.OutOrStdout(), out.Format, out.File, out.ConfidencePrecision, quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	st := result.Stats()
	slog.Info("Batch completed", "images", st.TotalImages, "failed", st.FailedImages,
		"duration", st.TotalDuration.String(), "workers", st.WorkerCount)
	if showStats && !quiet {
		result.PrintStats(cmd.ErrOrStderr())
	}
	return nil
}
