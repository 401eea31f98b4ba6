package classifier

import (
	"math"
	"sort"

	"github.com/MeKo-Tech/plantex/internal/engine"
)

// DefaultTopK is the number of results returned when Config.TopK is unset.
const DefaultTopK = 5

// Dequantize converts raw output values to scores using policy, writing
// into dst when it has room.
func Dequantize(out *engine.Buffer, policy NormalizationPolicy, dst []float32) []float32 {
	n := out.Len()
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range n {
		dst[i] = policy.Apply(out.At(i), 0)
	}
	return dst
}

// Rank pairs labels with scores by index, orders them by descending
// confidence and keeps the first k. Equal scores keep label order and NaN
// scores sort last. k <= 0 keeps everything.
func Rank(labels []string, scores []float32, k int) []Recognition {
	n := min(len(labels), len(scores))
	recs := make([]Recognition, n)
	for i := range n {
		recs[i] = Recognition{Label: labels[i], Confidence: scores[i]}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return higher(recs[i].Confidence, recs[j].Confidence)
	})
	if k > 0 && k < n {
		recs = recs[:k]
	}
	return recs
}

func higher(a, b float32) bool {
	aNaN, bNaN := math.IsNaN(float64(a)), math.IsNaN(float64(b))
	if aNaN || bNaN {
		return !aNaN && bNaN
	}
	return a > b
}
