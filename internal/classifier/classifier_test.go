package classifier

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/MeKo-Tech/plantex/internal/engine"
	"github.com/MeKo-Tech/plantex/internal/engine/mock"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T, eng *mock.Engine, labels []string) *Classifier {
	t.Helper()
	c, err := New(eng, labels, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClassify_RanksLabels(t *testing.T) {
	c := newTestClassifier(t, mock.New(4, 4, []float32{0.1, 0.9, 0.0}), []string{"cat", "dog", "bird"})

	got, err := c.Classify(randomImage(10, 7, 1), 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Recognition{Label: "dog", Confidence: 0.9}, got[0])
	assert.Equal(t, Recognition{Label: "cat", Confidence: 0.1}, got[1])
	assert.Equal(t, Recognition{Label: "bird", Confidence: 0}, got[2])
}

func TestClassify_DefaultTopKIsFive(t *testing.T) {
	scores := []float32{0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.35}
	labels := []string{"a", "b", "c", "d", "e", "f", "g"}
	c := newTestClassifier(t, mock.New(4, 4, scores), labels)

	got, err := c.Classify(randomImage(4, 4, 2), 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultTopK)
	assert.Equal(t, "g", got[0].Label)
	assert.Equal(t, "c", got[4].Label)
}

func TestClassifyTopK(t *testing.T) {
	c := newTestClassifier(t, mock.New(4, 4, []float32{0.2, 0.5, 0.3}), []string{"a", "b", "c"})

	got, err := c.ClassifyTopK(randomImage(4, 4, 3), 0, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Label)
}

func TestClassify_QuantizedModel(t *testing.T) {
	eng := mock.NewQuantized(4, 4, []uint8{51, 204, 0})
	var seen []uint8
	eng.OnRun = func(in *engine.Buffer) {
		seen = append([]uint8(nil), in.Uint8Data...)
	}
	c := newTestClassifier(t, eng, []string{"a", "b", "c"})

	img := imaging.New(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	got, err := c.Classify(img, 90)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].Label)
	assert.InDelta(t, 0.8, got[0].Confidence, 1e-6)
	assert.InDelta(t, 0.2, got[1].Confidence, 1e-6)

	// raw pixels reach a quantized model untouched
	require.Len(t, seen, 4*4*3)
	assert.Equal(t, []uint8{10, 20, 30}, seen[:3])
}

func TestClassify_FloatInputIsUnitScaled(t *testing.T) {
	eng := mock.New(2, 2, []float32{1})
	var first float32
	eng.OnRun = func(in *engine.Buffer) { first = in.Float32Data[0] }
	c := newTestClassifier(t, eng, []string{"only"})

	_, err := c.Classify(imaging.New(2, 2, color.NRGBA{R: 255, A: 255}), 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, first, 1e-6)
}

func TestClassify_Softmax(t *testing.T) {
	eng := mock.New(2, 2, mock.Logits([]float32{0.25, 0.75}))
	cfg := DefaultConfig()
	cfg.Softmax = true
	c, err := New(eng, []string{"a", "b"}, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	got, err := c.Classify(randomImage(3, 3, 4), 0)
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].Label)
	assert.InDelta(t, 0.75, got[0].Confidence, 1e-4)
}

func TestClassify_InvalidImage(t *testing.T) {
	eng := mock.New(2, 2, []float32{1})
	c := newTestClassifier(t, eng, []string{"only"})

	var ie *InvalidImageError
	_, err := c.Classify(nil, 0)
	require.ErrorAs(t, err, &ie)

	_, err = c.Classify(image.NewNRGBA(image.Rect(0, 0, 0, 5)), 0)
	require.ErrorAs(t, err, &ie)
	assert.Zero(t, eng.Runs())
}

func TestClassify_InferenceError(t *testing.T) {
	eng := mock.New(2, 2, []float32{1})
	cause := errors.New("device lost")
	eng.RunErr = cause
	c := newTestClassifier(t, eng, []string{"only"})

	got, err := c.Classify(randomImage(2, 2, 5), 0)
	assert.Nil(t, got)
	var ie *InferenceError
	require.ErrorAs(t, err, &ie)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "inference failed")
}

func TestClassify_OutputResetBetweenCalls(t *testing.T) {
	eng := mock.New(2, 2, []float32{0.4, 0.6})
	c := newTestClassifier(t, eng, []string{"a", "b"})

	_, err := c.Classify(randomImage(2, 2, 6), 0)
	require.NoError(t, err)

	eng.RunErr = errors.New("fail once")
	_, err = c.Classify(randomImage(2, 2, 6), 0)
	require.Error(t, err)
	for _, v := range c.output.Float32Data {
		assert.Zero(t, v)
	}
}

func TestNew_LabelMismatch(t *testing.T) {
	eng := mock.New(4, 4, []float32{0.1, 0.2, 0.7})
	_, err := New(eng, []string{"a", "b", "c", "d"}, DefaultConfig())

	var lm *LabelMismatchError
	require.ErrorAs(t, err, &lm)
	assert.Equal(t, 4, lm.Labels)
	assert.Equal(t, 3, lm.Outputs)
	assert.True(t, eng.Closed())
}

func TestNew_BadGeometry(t *testing.T) {
	eng := mock.New(4, 4, []float32{1})
	eng.Input.Shape = engine.Shape{1, 4, 4}
	_, err := New(eng, []string{"a"}, DefaultConfig())

	var ml *ModelLoadError
	require.ErrorAs(t, err, &ml)
	assert.True(t, eng.Closed())
}

func TestNew_BadNormalization(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputNormalization = NormalizeCustom
	cfg.InputMean = []float32{0, 0}
	cfg.InputStd = []float32{1}
	_, err := New(mock.New(2, 2, []float32{1}), []string{"a"}, cfg)

	var ml *ModelLoadError
	require.ErrorAs(t, err, &ml)
}

func TestNew_NilEngine(t *testing.T) {
	var ml *ModelLoadError
	_, err := New(nil, []string{"a"}, DefaultConfig())
	require.ErrorAs(t, err, &ml)
}

func TestOpen(t *testing.T) {
	eng := mock.New(2, 2, []float32{0.3, 0.7})
	c, err := Open([]byte("model"), []string{"a", "b"}, DefaultConfig(), eng.Opener())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, 2, c.Geometry().Classes)
	assert.Equal(t, []string{"a", "b"}, c.Labels())
	assert.Equal(t, DefaultTopK, c.TopK())
}

func TestOpen_OpenerFailure(t *testing.T) {
	cause := errors.New("corrupt flatbuffer")
	failing := func([]byte) (engine.Engine, error) { return nil, cause }

	_, err := Open([]byte("junk"), []string{"a"}, DefaultConfig(), failing)
	var ml *ModelLoadError
	require.ErrorAs(t, err, &ml)
	require.ErrorIs(t, err, cause)

	_, err = Open(nil, []string{"a"}, DefaultConfig(), nil)
	require.ErrorAs(t, err, &ml)
}

func TestWarmup(t *testing.T) {
	eng := mock.New(4, 4, []float32{1})
	cfg := DefaultConfig()
	cfg.WarmupIterations = 3
	c, err := New(eng, []string{"a"}, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Equal(t, 3, eng.Runs())

	require.NoError(t, c.Warmup(0))
	assert.Equal(t, 3, eng.Runs())
}

func TestWarmup_FailureClosesEngine(t *testing.T) {
	eng := mock.New(4, 4, []float32{1})
	eng.RunErr = errors.New("boom")
	cfg := DefaultConfig()
	cfg.WarmupIterations = 1
	_, err := New(eng, []string{"a"}, cfg)
	require.Error(t, err)
	assert.True(t, eng.Closed())
}

func TestClose(t *testing.T) {
	eng := mock.New(2, 2, []float32{1})
	c, err := New(eng, []string{"a"}, DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, eng.Closed())

	_, err = c.Classify(randomImage(2, 2, 7), 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, c.Warmup(1), ErrClosed)
}

func TestClassify_ConcurrentCallsAreSerialized(t *testing.T) {
	eng := mock.New(4, 4, []float32{0.6, 0.4})
	var mu sync.Mutex
	active, peak := 0, 0
	eng.OnRun = func(*engine.Buffer) {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}
	c := newTestClassifier(t, eng, []string{"a", "b"})

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			got, err := c.Classify(randomImage(6, 6, seed), 90)
			assert.NoError(t, err)
			assert.Equal(t, "a", got[0].Label)
		}(int64(i))
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
	assert.Equal(t, 16, eng.Runs())
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "label count 4 does not match model output size 3",
		(&LabelMismatchError{Labels: 4, Outputs: 3}).Error())
	assert.Equal(t, "invalid image: image is nil", (&InvalidImageError{Reason: "image is nil"}).Error())
	assert.Equal(t, "model load failed: x", (&ModelLoadError{Err: errors.New("x")}).Error())
	assert.Equal(t, "preprocess failed: y", (&PreprocessError{Err: errors.New("y")}).Error())
}
