package batch

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/plantex/internal/classifier"
	"github.com/MeKo-Tech/plantex/internal/engine/mock"
	"github.com/MeKo-Tech/plantex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClassifier answers with a fixed ranking, or fails for images of a given width.
type stubClassifier struct {
	failWidth int
	calls     atomic.Int64
}

func (s *stubClassifier) ClassifyTopK(
	_ context.Context, img image.Image, orientation, k int,
) ([]classifier.Recognition, error) {
	s.calls.Add(1)
	if s.failWidth > 0 && img.Bounds().Dx() == s.failWidth {
		return nil, &classifier.InferenceError{Err: errors.New("boom")}
	}
	recs := []classifier.Recognition{{Label: "rose", Confidence: 0.9}, {Label: "fern", Confidence: 0.1}}
	if k > 0 && k < len(recs) {
		recs = recs[:k]
	}
	return recs, nil
}

func newPool(t *testing.T, size int) *classifier.Pool {
	t.Helper()
	labels := testutil.DefaultLabels
	p, err := classifier.NewPool(size, func() (*classifier.Classifier, error) {
		eng := mock.New(8, 8, mock.PeakedScores(len(labels), 2, 0.7))
		return classifier.New(eng, labels, classifier.DefaultConfig())
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func TestProcessBatch_WithPool(t *testing.T) {
	dir := t.TempDir()
	paths := testutil.WriteLeafImages(t, dir, "a.png", "b.png", "c.jpg", "d.bmp")

	cfg := &Config{Workers: 3, TopK: 2, Orientation: 90}
	res, err := ProcessBatch(context.Background(), newPool(t, 2), []string{dir}, cfg)
	require.NoError(t, err)

	require.Len(t, res.Images, 4)
	assert.Equal(t, 3, res.WorkerCount)
	for i, img := range res.Images {
		assert.Equal(t, paths[i], img.File, "results keep discovery order")
		assert.Equal(t, 90, img.Orientation)
		assert.False(t, img.Failed())
		require.Len(t, img.Results, 2)
		assert.Equal(t, "daisy", img.Results[0].Label)
		assert.Positive(t, img.Width)
	}

	st := res.Stats()
	assert.Equal(t, 4, st.ProcessedImages)
	assert.Equal(t, 0, st.FailedImages)
}

func TestProcessBatch_NoImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	_, err := ProcessBatch(context.Background(), &stubClassifier{}, []string{dir}, &Config{Workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image files found")
}

func TestProcessBatch_InvalidPath(t *testing.T) {
	_, err := ProcessBatch(context.Background(), &stubClassifier{}, []string{"/nonexistent/file.png"}, &Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot access")
}

func TestProcessBatch_NilClassifier(t *testing.T) {
	_, err := ProcessBatch(context.Background(), nil, []string{"."}, &Config{})
	require.Error(t, err)
}

func TestProcessBatch_StopsOnError(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLeafImages(t, dir, "a.png", "b.png")

	// WriteLeafImages makes the second image 36 pixels wide.
	stub := &stubClassifier{failWidth: 36}
	_, err := ProcessBatch(context.Background(), stub, []string{dir}, &Config{Workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.png")

	var ie *classifier.InferenceError
	assert.ErrorAs(t, err, &ie)
}

func TestProcessBatch_ContinueOnError(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLeafImages(t, dir, "a.png", "b.png", "c.png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d.png"), []byte("not a png"), 0o600))

	stub := &stubClassifier{failWidth: 36}
	res, err := ProcessBatch(context.Background(), stub, []string{dir},
		&Config{Workers: 2, ContinueOnError: true})
	require.NoError(t, err)
	require.Len(t, res.Images, 4)

	assert.False(t, res.Images[0].Failed())
	assert.True(t, res.Images[1].Failed())
	assert.False(t, res.Images[2].Failed())
	assert.True(t, res.Images[3].Failed())
	assert.Contains(t, res.Images[3].Error, "failed to load")

	st := res.Stats()
	assert.Equal(t, 2, st.ProcessedImages)
	assert.Equal(t, 2, st.FailedImages)
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLeafImages(t, dir, "a.png", "b.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessBatch(ctx, &stubClassifier{}, []string{dir}, &Config{Workers: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEffectiveWorkers(t *testing.T) {
	assert.Equal(t, 2, effectiveWorkers(2, 10))
	assert.Equal(t, 3, effectiveWorkers(8, 3))
	assert.Equal(t, 1, effectiveWorkers(4, 0))
	assert.Positive(t, effectiveWorkers(0, 100))
}

func TestResult_Stats(t *testing.T) {
	res := &Result{
		Images: []ImageResult{
			{File: "a", Results: []classifier.Recognition{{Label: "x", Confidence: 1}}},
			{File: "b", Error: "bad"},
		},
		Duration:    2 * time.Second,
		WorkerCount: 2,
	}

	st := res.Stats()
	assert.Equal(t, 2, st.TotalImages)
	assert.Equal(t, 1, st.ProcessedImages)
	assert.Equal(t, 1, st.FailedImages)
	assert.Equal(t, 2*time.Second, st.AveragePerImage)
	assert.InDelta(t, 0.5, st.ThroughputPerSec, 1e-9)
}
