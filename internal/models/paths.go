package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model and label file names shipped with the project.
const (
	// Classification models.
	ClassifierFloat     = "plantex_classifier.onnx"
	ClassifierQuantized = "plantex_classifier_quant.onnx"

	// Label files.
	LabelsDefault = "plantex_labels.txt"

	DefaultModelFile  = ClassifierFloat
	DefaultLabelsFile = LabelsDefault
)

// Model type categories for organized directory structure.
const (
	TypeClassification = "classification"
	TypeLabels         = "labels"
)

// Model variant categories.
const (
	VariantFloat     = "float"
	VariantQuantized = "quantized"
)

// Default models directory.
const DefaultModelsDir = "models"

// Environment variable for models directory override.
const EnvModelsDir = "PLANTEX_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo contains metadata about a model or label file.
type ModelInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Variant     string `json:"variant,omitempty"`
	Description string `json:"description"`
	Filename    string `json:"filename"`
	Path        string `json:"path,omitempty"`
	Installed   bool   `json:"installed"`
}

// GetModelsDir returns the models directory path from various sources
// Priority: 1. Explicit modelsDir parameter, 2. Environment variable, 3. Project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}

	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}

	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}

	return DefaultModelsDir
}

// ResolveModelPath resolves a filename to its full path. The organized
// layout (<dir>/<type>/<filename>) is preferred; the flat layout is the fallback.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	baseDir := GetModelsDir(modelsDir)

	if modelType != "" {
		organizedPath := filepath.Join(baseDir, modelType, filename)
		if _, err := os.Stat(organizedPath); err == nil {
			return organizedPath
		}
	}

	return filepath.Join(baseDir, filename)
}

// GetModelPath returns the path for a classification model.
func GetModelPath(modelsDir, filename string) string {
	if filename == "" {
		filename = DefaultModelFile
	}
	return ResolveModelPath(modelsDir, TypeClassification, filename)
}

// GetLabelsPath returns the path for a label file.
func GetLabelsPath(modelsDir, filename string) string {
	if filename == "" {
		filename = DefaultLabelsFile
	}
	return ResolveModelPath(modelsDir, TypeLabels, filename)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns the known model files and whether each is
// present under modelsDir.
func ListAvailableModels(modelsDir string) []ModelInfo {
	known := []ModelInfo{
		{
			Name:        "classifier-float",
			Type:        TypeClassification,
			Variant:     VariantFloat,
			Description: "Float32 plant classifier",
			Filename:    ClassifierFloat,
		},
		{
			Name:        "classifier-quantized",
			Type:        TypeClassification,
			Variant:     VariantQuantized,
			Description: "Quantized uint8 plant classifier",
			Filename:    ClassifierQuantized,
		},
		{
			Name:        "labels",
			Type:        TypeLabels,
			Description: "Class labels, one per line",
			Filename:    LabelsDefault,
		},
	}
	for i := range known {
		known[i].Path = ResolveModelPath(modelsDir, known[i].Type, known[i].Filename)
		known[i].Installed = ValidateModelExists(known[i].Path) == nil
	}
	return known
}
