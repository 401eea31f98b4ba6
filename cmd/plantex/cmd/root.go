package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/config"
	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/MeKo-Tech/plantex/internal/onnx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flags to configuration keys. A flag listed here
// overrides the config file and environment when it is set explicitly.
var flagKeys = map[string]string{
	"models-dir":        "models_dir",
	"log-level":         "log_level",
	"verbose":           "verbose",
	"onnx-lib":          "runtime.library_path",
	"threads":           "runtime.num_threads",
	"model":             "classifier.model_path",
	"labels":            "classifier.labels_path",
	"top-k":             "classifier.top_k",
	"softmax":           "classifier.softmax",
	"warmup":            "classifier.warmup_iterations",
	"instances":         "classifier.instances",
	"format":            "output.format",
	"output":            "output.file",
	"precision":         "output.confidence_precision",
	"workers":           "batch.workers",
	"recursive":         "batch.recursive",
	"include":           "batch.include",
	"exclude":           "batch.exclude",
	"continue-on-error": "batch.continue_on_error",
	"host":              "server.host",
	"port":              "server.port",
	"cors-origin":       "server.cors_origin",
	"max-upload-size":   "server.max_upload_mb",
	"timeout":           "server.timeout_sec",
	"shutdown-timeout":  "server.shutdown_timeout",
	"rate-limit":        "server.rate_limit.enabled",
	"requests-per-min":  "server.rate_limit.requests_per_minute",
	"requests-per-hour": "server.rate_limit.requests_per_hour",
}

// Option customizes the root command.
type Option func(*app)

// WithEngineOpener replaces the ONNX Runtime backend, mainly for tests.
func WithEngineOpener(open engine.Opener) Option {
	return func(a *app) { a.opener = open }
}

// WithLogOutput redirects structured logs.
func WithLogOutput(w io.Writer) Option {
	return func(a *app) { a.logOut = w }
}

// app holds the state shared by one command tree.
type app struct {
	loader  *config.Loader
	cfg     *config.Config
	cfgFile string
	opener  engine.Opener
	logOut  io.Writer
}

// NewRootCommand builds a fresh command tree. Each tree has its own
// configuration state, so several can run in one process.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		loader: config.NewIsolatedLoader(),
		logOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	rootCmd := &cobra.Command{
		Use:   "plantex",
		Short: "Plant image classification with ONNX models",
		Long: `plantex classifies plant photos with an image classification model.

Each image is center-cropped to a square, resized to the model input,
rotated by the given orientation and scored. The best matching labels
are reported with their confidence.

Examples:
  plantex classify leaf.jpg
  plantex classify photo.png --orientation 90 --top-k 3 --format json
  plantex batch photos/ --recursive --workers 8
  plantex serve --port 8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "",
		"config file (default is plantex.yaml in ., $XDG_CONFIG_HOME/plantex, $HOME/.config/plantex, $HOME, /etc/plantex)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", models.DefaultModelsDir,
		"directory containing models and labels (can also be set via "+models.EnvModelsDir+")")
	pf.String("onnx-lib", "", "path to the ONNX Runtime shared library (default: auto-detect)")
	pf.Int("threads", 0, "inference threads per classifier (0 = runtime default)")

	rootCmd.AddCommand(
		newClassifyCommand(a),
		newBatchCommand(a),
		newServeCommand(a),
		newBenchCommand(a),
		newCheckCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration with the executing command's flags applied and
// installs the default logger.
func (a *app) setup(cmd *cobra.Command) error {
	if err := a.bindFlags(cmd.Flags()); err != nil {
		return err
	}

	var err error
	if a.cfgFile != "" {
		a.cfg, err = a.loader.LoadWithFile(a.cfgFile)
	} else {
		a.cfg, err = a.loader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	var logLevel slog.Level
	if a.cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch a.cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	// Logs go to stderr so that stdout carries only results.
	logger := slog.New(slog.NewJSONHandler(a.logOut, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return nil
}

func (a *app) bindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := a.loader.GetViper().BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// engineOpener returns the configured backend.
func (a *app) engineOpener() engine.Opener {
	if a.opener != nil {
		return a.opener
	}
	return onnx.NewOpener(a.cfg.ToONNXConfig())
}

// openPool loads the model and labels named by the configuration.
func (a *app) openPool(instances int) (*classifier.Pool, error) {
	if instances < 1 {
		instances = a.cfg.Classifier.Instances
	}
	modelPath := a.cfg.ModelPath()
	labelsPath := a.cfg.LabelsPath()

	slog.Debug("Loading classifier", "model", modelPath, "labels", labelsPath, "instances", instances)
	pool, err := classifier.LoadPool(instances, modelPath, labelsPath, a.cfg.ToClassifierConfig(), a.engineOpener())
	if err != nil {
		return nil, fmt.Errorf("failed to load classifier: %w", err)
	}

	g := pool.Geometry()
	slog.Info("Classifier ready",
		"input", fmt.Sprintf("%dx%dx%d", g.Width, g.Height, g.Channels),
		"layout", g.Layout.String(), "classes", g.Classes, "instances", pool.Size())
	return pool, nil
}

func closePool(pool *classifier.Pool) {
	if err := pool.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing classifier: %v\n", err)
	}
}
