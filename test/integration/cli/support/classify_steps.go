package support

import (
	"encoding/json"
	"fmt"

	"github.com/MeKo-Tech/plantex/internal/batch"
	"github.com/cucumber/godog"
)

func (testCtx *TestContext) jsonImages() ([]batch.ImageResult, error) {
	var doc struct {
		Images []batch.ImageResult `json:"images"`
	}
	if err := json.Unmarshal([]byte(testCtx.LastStdout), &doc); err != nil {
		return nil, fmt.Errorf("output is not a JSON result document: %w\n%s", err, testCtx.LastStdout)
	}
	return doc.Images, nil
}

// theOutputShouldListImages counts images in a JSON result document.
func (testCtx *TestContext) theOutputShouldListImages(n int) error {
	images, err := testCtx.jsonImages()
	if err != nil {
		return err
	}
	if len(images) != n {
		return fmt.Errorf("expected %d images, got %d", n, len(images))
	}
	return nil
}

// everyImageShouldReportResults verifies the per-image result count.
func (testCtx *TestContext) everyImageShouldReportResults(n int) error {
	images, err := testCtx.jsonImages()
	if err != nil {
		return err
	}
	for _, img := range images {
		if len(img.Results) != n {
			return fmt.Errorf("%s has %d results, want %d", img.File, len(img.Results), n)
		}
	}
	return nil
}

// resultsShouldBeSortedByConfidence verifies descending order per image.
func (testCtx *TestContext) resultsShouldBeSortedByConfidence() error {
	images, err := testCtx.jsonImages()
	if err != nil {
		return err
	}
	for _, img := range images {
		for i := 1; i < len(img.Results); i++ {
			if img.Results[i].Confidence > img.Results[i-1].Confidence {
				return fmt.Errorf("%s: result %d (%v) ranks above %d (%v)",
					img.File, i, img.Results[i].Confidence, i-1, img.Results[i-1].Confidence)
			}
		}
	}
	return nil
}

// theTopLabelForShouldBe checks the best label of one image.
func (testCtx *TestContext) theTopLabelForShouldBe(name, label string) error {
	images, err := testCtx.jsonImages()
	if err != nil {
		return err
	}
	want := testCtx.Path(name)
	for _, img := range images {
		if img.File != want {
			continue
		}
		if img.Failed() || len(img.Results) == 0 {
			return fmt.Errorf("%s has no results: %s", name, img.Error)
		}
		if img.Results[0].Label != label {
			return fmt.Errorf("top label for %s is %q, want %q", name, img.Results[0].Label, label)
		}
		return nil
	}
	return fmt.Errorf("%s not in output", name)
}

// theImageShouldHaveFailed verifies a per-image error was recorded.
func (testCtx *TestContext) theImageShouldHaveFailed(name string) error {
	images, err := testCtx.jsonImages()
	if err != nil {
		return err
	}
	want := testCtx.Path(name)
	for _, img := range images {
		if img.File == want {
			if !img.Failed() {
				return fmt.Errorf("%s did not fail", name)
			}
			return nil
		}
	}
	return fmt.Errorf("%s not in output", name)
}

// RegisterClassifySteps registers steps about classification results.
func (testCtx *TestContext) RegisterClassifySteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should list (\d+) images?$`, testCtx.theOutputShouldListImages)
	sc.Step(`^every image should report (\d+) results?$`, testCtx.everyImageShouldReportResults)
	sc.Step(`^the results should be sorted by confidence$`, testCtx.resultsShouldBeSortedByConfidence)
	sc.Step(`^the top label for "([^"]*)" should be "([^"]*)"$`, testCtx.theTopLabelForShouldBe)
	sc.Step(`^the image "([^"]*)" should have failed$`, testCtx.theImageShouldHaveFailed)
}
