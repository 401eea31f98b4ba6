package classifier

import (
	"math"
	"testing"

	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank_OrdersDescending(t *testing.T) {
	got := Rank([]string{"cat", "dog", "bird"}, []float32{0.1, 0.9, 0.0}, 5)
	require.Len(t, got, 3)
	assert.Equal(t, "dog", got[0].Label)
	assert.InDelta(t, 0.9, got[0].Confidence, 1e-6)
	assert.Equal(t, "cat", got[1].Label)
	assert.Equal(t, "bird", got[2].Label)
}

func TestRank_TruncatesToK(t *testing.T) {
	labels := []string{"a", "b", "c", "d", "e", "f", "g"}
	scores := []float32{0.1, 0.7, 0.3, 0.05, 0.6, 0.2, 0.4}
	got := Rank(labels, scores, 5)
	require.Len(t, got, 5)
	want := []string{"b", "e", "g", "c", "f"}
	for i, r := range got {
		assert.Equal(t, want[i], r.Label)
	}
}

func TestRank_TiesKeepLabelOrder(t *testing.T) {
	got := Rank([]string{"x", "y", "z"}, []float32{0.5, 0.5, 0.5}, 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"x", "y", "z"}, []string{got[0].Label, got[1].Label, got[2].Label})
}

func TestRank_NaNSortsLast(t *testing.T) {
	nan := float32(math.NaN())
	got := Rank([]string{"n", "a", "b"}, []float32{nan, 0.2, 0.8}, 0)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Label)
	assert.Equal(t, "a", got[1].Label)
	assert.Equal(t, "n", got[2].Label)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil, nil, 5))
}

func TestDequantize_Uint8(t *testing.T) {
	out, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 3}, Type: engine.Uint8})
	require.NoError(t, err)
	copy(out.Uint8Data, []uint8{0, 255, 51})

	got := Dequantize(out, UnitScale(), nil)
	assert.InDeltaSlice(t, []float32{0, 1, 0.2}, got, 1e-6)
}

func TestDequantize_ReusesDst(t *testing.T) {
	out, err := engine.NewBuffer(engine.TensorInfo{Shape: engine.Shape{1, 2}, Type: engine.Float32})
	require.NoError(t, err)
	copy(out.Float32Data, []float32{0.25, 0.75})

	dst := make([]float32, 0, 8)
	got := Dequantize(out, PassThrough(), dst)
	assert.Equal(t, []float32{0.25, 0.75}, got)
	assert.Equal(t, 8, cap(got))
}
