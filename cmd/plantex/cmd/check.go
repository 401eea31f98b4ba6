package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/MeKo-Tech/plantex/internal/onnx"
	"github.com/spf13/cobra"
)

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check ONNX Runtime and model files",
		Long: `Verify that the ONNX Runtime library can be loaded and that the
configured model and label files are present and consistent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd)
		},
	}
}

func (a *app) runCheck(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	if a.opener == nil {
		info, err := onnx.CheckRuntime(a.cfg.Runtime.LibraryPath)
		if err != nil {
			_, _ = fmt.Fprintf(out, "ONNX Runtime: FAILED (%v)\n", err)
			return err
		}
		_, _ = fmt.Fprintf(out, "ONNX Runtime: OK (version %s, %s)\n", info.Version, info.LibraryPath)
	}

	modelPath := a.cfg.ModelPath()
	labelsPath := a.cfg.LabelsPath()
	for _, p := range []struct{ name, path string }{{"Model", modelPath}, {"Labels", labelsPath}} {
		if err := models.ValidateModelExists(p.path); err != nil {
			_, _ = fmt.Fprintf(out, "%s: MISSING (%s)\n", p.name, p.path)
			return err
		}
		_, _ = fmt.Fprintf(out, "%s: OK (%s)\n", p.name, p.path)
	}

	pool, err := a.openPool(1)
	if err != nil {
		_, _ = fmt.Fprintf(out, "Classifier: FAILED (%v)\n", err)
		return err
	}
	defer closePool(pool)

	g := pool.Geometry()
	_, _ = fmt.Fprintf(out, "Classifier: OK (input %dx%dx%d %s, %s, %d labels)\n",
		g.Width, g.Height, g.Channels, g.Layout, g.Input.Type, len(pool.Labels()))
	return nil
}
