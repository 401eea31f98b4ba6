package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/plantex/internal/batch"
	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/models"
	"github.com/MeKo-Tech/plantex/internal/onnx"
	"github.com/MeKo-Tech/plantex/internal/server"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	cls := classifier.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		Verbose:   false,
		Classifier: ClassifierConfig{
			TopK:                cls.TopK,
			InputNormalization:  cls.InputNormalization,
			OutputNormalization: cls.OutputNormalization,
			OutputMean:          float64(cls.OutputMean),
			OutputStd:           float64(cls.OutputStd),
			Softmax:             cls.Softmax,
			WarmupIterations:    cls.WarmupIterations,
			Instances:           1,
		},
		Runtime: RuntimeConfig{
			NumThreads: onnx.DefaultConfig().NumThreads,
		},
		Output: OutputConfig{
			Format:              "text",
			ConfidencePrecision: 4,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     50,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
			},
		},
		Batch: BatchConfig{
			Workers:         4,
			ContinueOnError: false,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "csv"}
	if c.Output.Format != "" && !contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if c.Output.ConfidencePrecision < 0 || c.Output.ConfidencePrecision > 8 {
		return fmt.Errorf("invalid confidence precision: %d (must be between 0 and 8)", c.Output.ConfidencePrecision)
	}

	if err := c.validateClassifier(); err != nil {
		return err
	}

	if c.Runtime.NumThreads < 0 {
		return fmt.Errorf("invalid runtime num threads: %d (must not be negative)", c.Runtime.NumThreads)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.RateLimit.Enabled {
		rl := c.Server.RateLimit
		if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDay < 0 {
			return errors.New("invalid rate limit: limits must not be negative")
		}
	}

	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}

	return nil
}

func (c *Config) validateClassifier() error {
	cls := c.Classifier
	if cls.TopK < 1 {
		return fmt.Errorf("invalid top_k: %d (must be at least 1)", cls.TopK)
	}
	if cls.Instances < 1 {
		return fmt.Errorf("invalid classifier instances: %d (must be at least 1)", cls.Instances)
	}
	if cls.WarmupIterations < 0 {
		return fmt.Errorf("invalid warmup iterations: %d (must not be negative)", cls.WarmupIterations)
	}

	inModes := []string{
		classifier.NormalizeAuto, classifier.NormalizeQuantized, classifier.NormalizeFloat,
		classifier.NormalizeSigned, classifier.NormalizeCustom,
	}
	if !contains(inModes, cls.InputNormalization) {
		return fmt.Errorf("invalid input normalization: %s (must be one of: %s)",
			cls.InputNormalization, strings.Join(inModes, ", "))
	}
	if cls.InputNormalization == classifier.NormalizeCustom {
		if len(cls.InputMean) == 0 || len(cls.InputStd) == 0 {
			return errors.New("custom input normalization requires input_mean and input_std")
		}
		for _, s := range cls.InputStd {
			if s == 0 {
				return errors.New("invalid input_std: values must be non-zero")
			}
		}
	}

	outModes := []string{
		classifier.NormalizeAuto, classifier.NormalizeQuantized, classifier.NormalizeFloat, classifier.NormalizeCustom,
	}
	if !contains(outModes, cls.OutputNormalization) {
		return fmt.Errorf("invalid output normalization: %s (must be one of: %s)",
			cls.OutputNormalization, strings.Join(outModes, ", "))
	}
	if cls.OutputNormalization == classifier.NormalizeCustom && cls.OutputStd == 0 {
		return errors.New("invalid output_std: must be non-zero")
	}
	return nil
}

// ModelPath returns the configured model path, resolved against the models directory.
func (c *Config) ModelPath() string {
	return models.GetModelPath(c.ModelsDir, c.Classifier.ModelPath)
}

// LabelsPath returns the configured labels path, resolved against the models directory.
func (c *Config) LabelsPath() string {
	return models.GetLabelsPath(c.ModelsDir, c.Classifier.LabelsPath)
}

// ToClassifierConfig converts the config to the classifier configuration format.
func (c *Config) ToClassifierConfig() classifier.Config {
	cfg := classifier.DefaultConfig()
	cfg.TopK = c.Classifier.TopK
	cfg.InputNormalization = c.Classifier.InputNormalization
	cfg.InputMean = toFloat32s(c.Classifier.InputMean)
	cfg.InputStd = toFloat32s(c.Classifier.InputStd)
	cfg.OutputNormalization = c.Classifier.OutputNormalization
	cfg.OutputMean = float32(c.Classifier.OutputMean)
	cfg.OutputStd = float32(c.Classifier.OutputStd)
	cfg.Softmax = c.Classifier.Softmax
	cfg.WarmupIterations = c.Classifier.WarmupIterations
	return cfg
}

// ToONNXConfig converts the config to the ONNX Runtime session configuration.
func (c *Config) ToONNXConfig() onnx.Config {
	cfg := onnx.DefaultConfig()
	cfg.LibraryPath = c.Runtime.LibraryPath
	cfg.NumThreads = c.Runtime.NumThreads
	return cfg
}

// ToServerConfig converts the config to the HTTP server configuration.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		MaxUploadMB:     int64(c.Server.MaxUploadMB),
		TimeoutSec:      c.Server.TimeoutSec,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		ModelsDir:       c.ModelsDir,
		RateLimit: server.RateLimitConfig{
			Enabled:           c.Server.RateLimit.Enabled,
			RequestsPerMinute: c.Server.RateLimit.RequestsPerMinute,
			RequestsPerHour:   c.Server.RateLimit.RequestsPerHour,
			MaxRequestsPerDay: c.Server.RateLimit.MaxRequestsPerDay,
			MaxDataPerDay:     c.Server.RateLimit.MaxDataPerDay,
		},
	}
}

// ToBatchConfig converts the config to the batch processing configuration.
func (c *Config) ToBatchConfig() batch.Config {
	return batch.Config{
		Workers:         c.Batch.Workers,
		Recursive:       c.Batch.Recursive,
		IncludePatterns: append([]string(nil), c.Batch.Include...),
		ExcludePatterns: append([]string(nil), c.Batch.Exclude...),
		ContinueOnError: c.Batch.ContinueOnError,
		TopK:            c.Classifier.TopK,
	}
}

func toFloat32s(in []float64) []float32 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
