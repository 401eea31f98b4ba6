package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/plantex/internal/batch"
	"github.com/spf13/cobra"
)

func newClassifyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [images...]",
		Short: "Classify plant images",
		Long: `Classify one or more image files and print the best matching labels.

The orientation is the clockwise rotation, in degrees, that brings the
image upright. It is truncated to a multiple of 90.

Supported formats: JPEG, PNG, GIF, BMP, TIFF, WebP

Examples:
  plantex classify leaf.jpg
  plantex classify *.png --top-k 3 --format json
  plantex classify photo.jpg --orientation 270 --output result.csv --format csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runClassify(cmd, args)
		},
	}

	f := cmd.Flags()
	f.Int("orientation", 0, "clockwise rotation of the image in degrees (0, 90, 180, 270)")
	f.IntP("top-k", "k", 5, "number of labels to report per image")
	f.StringP("format", "f", "text", "output format: text, json, csv")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.Int("precision", batch.DefaultPrecision, "confidence decimals in text and csv output")
	f.String("model", "", "model file (default: <models-dir>/plantex_classifier.onnx)")
	f.String("labels", "", "label file (default: <models-dir>/plantex_labels.txt)")
	f.Bool("softmax", false, "apply softmax to float model outputs")
	f.Int("warmup", 0, "warmup inferences before classifying")
	return cmd
}

func (a *app) runClassify(cmd *cobra.Command, args []string) error {
	orientation, _ := cmd.Flags().GetInt("orientation")

	pool, err := a.openPool(1)
	if err != nil {
		return err
	}
	defer closePool(pool)

	bc := a.cfg.ToBatchConfig()
	bc.Workers = 1
	bc.ContinueOnError = true
	bc.Orientation = orientation
	// Explicit file arguments are classified as given.
	bc.IncludePatterns = nil
	bc.ExcludePatterns = nil

	result, err := batch.ProcessBatch(cmd.Context(), pool, args, &bc)
	if err != nil {
		return err
	}

	out := a.cfg.Output
	if err := result.SaveResults(cmd.OutOrStdout(), out.Format, out.File, out.ConfidencePrecision, false); err != nil {
		return err
	}

	if failed := result.Stats().FailedImages; failed > 0 {
		if failed == len(result.Images) {
			return errors.New("no image could be classified")
		}
		return fmt.Errorf("%d of %d images could not be classified", failed, len(result.Images))
	}
	return nil
}
