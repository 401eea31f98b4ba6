// Package classifier turns a bitmap into ranked, labeled predictions using
// an image classification model behind an engine.Engine.
package classifier

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sync"

	"github.com/MeKo-Tech/plantex/internal/common"
	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/MeKo-Tech/plantex/internal/mempool"
	"github.com/disintegration/imaging"
)

// Config controls preprocessing and ranking.
type Config struct {
	// TopK is the maximum number of results per call. 0 means DefaultTopK.
	TopK int

	// InputNormalization is one of auto, quantized, float, signed, custom.
	// auto passes raw pixels to uint8 models and scales to 0..1 otherwise.
	InputNormalization string
	InputMean          []float32
	InputStd           []float32

	// OutputNormalization is one of auto, quantized, float, custom.
	// auto divides uint8 outputs by 255 and leaves float outputs as is.
	OutputNormalization string
	OutputMean          float32
	OutputStd           float32

	// Softmax converts float outputs from logits to probabilities.
	Softmax bool

	WarmupIterations int
}

// DefaultConfig provides sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopK:                DefaultTopK,
		InputNormalization:  NormalizeAuto,
		OutputNormalization: NormalizeAuto,
		OutputStd:           1,
	}
}

// Classifier runs single image classification. Each instance owns its
// tensors; calls on one instance are serialized.
type Classifier struct {
	mu sync.Mutex

	eng       engine.Engine
	geom      Geometry
	labels    []string
	topK      int
	softmax   bool
	inPolicy  NormalizationPolicy
	outPolicy NormalizationPolicy

	input  *engine.Buffer
	output *engine.Buffer
	closed bool
}

// Open loads model bytes with open and builds a Classifier around the result.
func Open(modelData []byte, labels []string, cfg Config, open engine.Opener) (*Classifier, error) {
	if open == nil {
		return nil, &ModelLoadError{Err: errors.New("no engine opener")}
	}
	eng, err := open(modelData)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	return New(eng, labels, cfg)
}

// New builds a Classifier around an already loaded engine. On failure the
// engine is closed.
func New(eng engine.Engine, labels []string, cfg Config) (*Classifier, error) {
	if eng == nil {
		return nil, &ModelLoadError{Err: errors.New("nil engine")}
	}
	c, err := build(eng, labels, cfg)
	if err != nil {
		closeEngine(eng)
		return nil, err
	}
	if cfg.WarmupIterations > 0 {
		if err := c.Warmup(cfg.WarmupIterations); err != nil {
			closeEngine(eng)
			return nil, err
		}
	}
	return c, nil
}

func closeEngine(eng engine.Engine) {
	if err := eng.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing engine: %v\n", err)
	}
}

func build(eng engine.Engine, labels []string, cfg Config) (*Classifier, error) {
	geom, err := ResolveGeometry(eng)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	if len(labels) != geom.Classes {
		return nil, &LabelMismatchError{Labels: len(labels), Outputs: geom.Classes}
	}

	inPolicy, err := inputPolicy(cfg, geom.Input.Type)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	if err := inPolicy.Validate(geom.Channels); err != nil {
		return nil, &ModelLoadError{Err: fmt.Errorf("input normalization: %w", err)}
	}
	outPolicy, err := outputPolicy(cfg, geom.Output.Type)
	if err != nil {
		return nil, &ModelLoadError{Err: err}
	}
	if err := outPolicy.Validate(1); err != nil {
		return nil, &ModelLoadError{Err: fmt.Errorf("output normalization: %w", err)}
	}

	input, err := engine.NewBuffer(geom.Input)
	if err != nil {
		return nil, &ModelLoadError{Err: fmt.Errorf("input buffer: %w", err)}
	}
	output, err := engine.NewBuffer(geom.Output)
	if err != nil {
		return nil, &ModelLoadError{Err: fmt.Errorf("output buffer: %w", err)}
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	slog.Debug("classifier ready",
		"width", geom.Width, "height", geom.Height, "channels", geom.Channels,
		"layout", geom.Layout.String(), "input_type", geom.Input.Type.String(),
		"output_type", geom.Output.Type.String(), "classes", geom.Classes, "top_k", topK)

	return &Classifier{
		eng:       eng,
		geom:      geom,
		labels:    append([]string(nil), labels...),
		topK:      topK,
		softmax:   cfg.Softmax,
		inPolicy:  inPolicy,
		outPolicy: outPolicy,
		input:     input,
		output:    output,
	}, nil
}

// Geometry returns the resolved model geometry.
func (c *Classifier) Geometry() Geometry { return c.geom }

// Labels returns a copy of the label set.
func (c *Classifier) Labels() []string { return append([]string(nil), c.labels...) }

// TopK returns the configured result limit.
func (c *Classifier) TopK() int { return c.topK }

// Classify returns up to TopK recognitions for img, most confident first.
// orientation is the clockwise rotation of the image in degrees; the image
// is turned back before inference.
func (c *Classifier) Classify(img image.Image, orientation int) ([]Recognition, error) {
	return c.ClassifyTopK(img, orientation, c.topK)
}

// ClassifyTopK is Classify with an explicit result limit. k <= 0 uses TopK.
func (c *Classifier) ClassifyTopK(img image.Image, orientation, k int) ([]Recognition, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = c.topK
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.classifyLocked(img, orientation, k)
}

func validateImage(img image.Image) error {
	if img == nil {
		return &InvalidImageError{Reason: "image is nil"}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return &InvalidImageError{Reason: fmt.Sprintf("image has no pixels (%dx%d)", b.Dx(), b.Dy())}
	}
	return nil
}

func (c *Classifier) classifyLocked(img image.Image, orientation, k int) ([]Recognition, error) {
	st := common.StartStages()
	prepared := Preprocess(img, c.geom, orientation)
	if err := c.inPolicy.Fill(prepared, c.geom, c.input); err != nil {
		return nil, err
	}
	st.Mark("preprocess")

	c.output.Reset()
	if err := c.eng.Run(c.input, c.output); err != nil {
		return nil, &InferenceError{Err: err}
	}
	st.Mark("inference")

	scores := mempool.GetFloat32(c.output.Len())
	defer mempool.PutFloat32(scores)
	scores = Dequantize(c.output, c.outPolicy, scores)
	if c.softmax {
		softmax(scores)
	}
	recs := Rank(c.labels, scores, k)
	st.Mark("postprocess")

	slog.Debug("classified", append([]any{"orientation", orientation, "results", len(recs)}, st.LogAttrs()...)...)
	return recs, nil
}

// Warmup runs n classifications of a blank image so the engine allocates
// its working memory before the first real request.
func (c *Classifier) Warmup(n int) error {
	if n <= 0 {
		return nil
	}
	img := imaging.New(c.geom.Width, c.geom.Height, color.Gray{Y: 128})

	t := common.NewNamedTimer("warmup")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for range n {
		if _, err := c.classifyLocked(img, 0, c.topK); err != nil {
			return fmt.Errorf("warmup: %w", err)
		}
	}
	slog.Debug("warmup complete", "iterations", n, "duration", t.Stop())
	return nil
}

// Close releases the engine. Further calls return ErrClosed.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.eng.Close()
}
