package classifier

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/plantex/internal/engine"
)

// Normalization modes accepted by Config.
const (
	NormalizeAuto      = "auto"
	NormalizeQuantized = "quantized"
	NormalizeFloat     = "float"
	NormalizeSigned    = "signed"
	NormalizeCustom    = "custom"
)

// NormalizationPolicy maps a value v in channel c to (v - Mean[c]) / Std[c].
// A single-element Mean or Std applies to every channel.
type NormalizationPolicy struct {
	Mean []float32
	Std  []float32
}

// PassThrough leaves values unchanged. Quantized models take raw 0..255 pixels.
func PassThrough() NormalizationPolicy {
	return NormalizationPolicy{Mean: []float32{0}, Std: []float32{1}}
}

// UnitScale maps 0..255 to 0..1.
func UnitScale() NormalizationPolicy {
	return NormalizationPolicy{Mean: []float32{0}, Std: []float32{255}}
}

// SignedScale maps 0..255 to -1..1.
func SignedScale() NormalizationPolicy {
	return NormalizationPolicy{Mean: []float32{127.5}, Std: []float32{127.5}}
}

// Validate checks that the policy is usable for the given channel count.
func (p NormalizationPolicy) Validate(channels int) error {
	if len(p.Mean) != 1 && len(p.Mean) != channels {
		return fmt.Errorf("mean has %d values, want 1 or %d", len(p.Mean), channels)
	}
	if len(p.Std) != 1 && len(p.Std) != channels {
		return fmt.Errorf("std has %d values, want 1 or %d", len(p.Std), channels)
	}
	for _, s := range p.Std {
		if s == 0 || math.IsNaN(float64(s)) {
			return errors.New("std must be non-zero")
		}
	}
	return nil
}

// Apply normalizes v for channel c.
func (p NormalizationPolicy) Apply(v float32, c int) float32 {
	return (v - pick(p.Mean, c)) / pick(p.Std, c)
}

func pick(vals []float32, c int) float32 {
	if len(vals) == 1 {
		return vals[0]
	}
	return vals[c]
}

// inputPolicy resolves the input normalization for a model input type.
func inputPolicy(cfg Config, typ engine.ElementType) (NormalizationPolicy, error) {
	switch strings.ToLower(cfg.InputNormalization) {
	case "", NormalizeAuto:
		if typ == engine.Uint8 {
			return PassThrough(), nil
		}
		return UnitScale(), nil
	case NormalizeQuantized:
		return PassThrough(), nil
	case NormalizeFloat:
		return UnitScale(), nil
	case NormalizeSigned:
		return SignedScale(), nil
	case NormalizeCustom:
		return NormalizationPolicy{Mean: cfg.InputMean, Std: cfg.InputStd}, nil
	default:
		return NormalizationPolicy{}, fmt.Errorf("unknown input normalization %q", cfg.InputNormalization)
	}
}

// outputPolicy resolves the dequantization applied to raw model outputs.
func outputPolicy(cfg Config, typ engine.ElementType) (NormalizationPolicy, error) {
	switch strings.ToLower(cfg.OutputNormalization) {
	case "", NormalizeAuto:
		if typ == engine.Uint8 {
			return UnitScale(), nil
		}
		return PassThrough(), nil
	case NormalizeQuantized:
		return UnitScale(), nil
	case NormalizeFloat:
		return PassThrough(), nil
	case NormalizeCustom:
		return NormalizationPolicy{
			Mean: []float32{cfg.OutputMean},
			Std:  []float32{cfg.OutputStd},
		}, nil
	default:
		return NormalizationPolicy{}, fmt.Errorf("unknown output normalization %q", cfg.OutputNormalization)
	}
}

// softmax converts logits to probabilities in place.
func softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	maxV := v[0]
	for _, x := range v[1:] {
		maxV = max(maxV, x)
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}
