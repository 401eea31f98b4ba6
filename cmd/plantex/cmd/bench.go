package cmd

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/plantex/internal/common"
	"github.com/MeKo-Tech/plantex/internal/utils"
	"github.com/spf13/cobra"
)

func newBenchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench [image]",
		Short: "Measure classification latency on one image",
		Long: `Classify the same image repeatedly and report latency and memory use.

Examples:
  plantex bench leaf.jpg
  plantex bench leaf.jpg --iterations 200 --orientation 90`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBench(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.Int("iterations", 50, "number of timed classifications")
	f.Int("orientation", 0, "clockwise rotation of the image in degrees")
	f.String("model", "", "model file (default: <models-dir>/plantex_classifier.onnx)")
	f.String("labels", "", "label file (default: <models-dir>/plantex_labels.txt)")
	f.Int("warmup", 3, "untimed warmup classifications")
	return cmd
}

func (a *app) runBench(cmd *cobra.Command, path string) error {
	iterations, _ := cmd.Flags().GetInt("iterations")
	orientation, _ := cmd.Flags().GetInt("orientation")
	if iterations < 1 {
		return errors.New("iterations must be at least 1")
	}

	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return err
	}

	pool, err := a.openPool(1)
	if err != nil {
		return err
	}
	defer closePool(pool)

	ctx := cmd.Context()
	runtime.GC()
	result := common.BenchmarkResult{
		Name:         fmt.Sprintf("classify %s (%dx%d)", path, meta.Width, meta.Height),
		MemoryBefore: common.GetMemoryStats(),
	}
	for range iterations {
		timer := common.NewTimer()
		if _, err := pool.ClassifyTopK(ctx, img, orientation, 0); err != nil {
			result.Error = err
			break
		}
		result.Add(timer.Stop())
	}
	result.MemoryAfter = common.GetMemoryStats()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, result.String())
	if result.Error != nil {
		return result.Error
	}
	_, _ = fmt.Fprintf(out, "  memory: %s\n", result.MemoryAfter.String())
	return nil
}
