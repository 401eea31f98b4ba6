package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"

	// LibraryPathEnv overrides shared library discovery.
	LibraryPathEnv = "PLANTEX_ONNXRUNTIME_LIB"
)

var envMu sync.Mutex

// getLibraryName returns the runtime library filename for the current OS.
func getLibraryName() (string, error) {
	return libraryNameFor(runtime.GOOS)
}

func libraryNameFor(goos string) (string, error) {
	switch goos {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

func systemLibraryPaths(libName string) []string {
	return []string{
		filepath.Join("/usr/local/lib", libName),
		filepath.Join("/usr/lib", libName),
		filepath.Join("/opt/onnxruntime/lib", libName),
	}
}

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}

// ResolveLibraryPath locates the ONNX Runtime shared library. An explicit
// path wins, then the PLANTEX_ONNXRUNTIME_LIB variable, then well-known
// system locations, then onnxruntime/lib under the project root.
func ResolveLibraryPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("ONNX Runtime library not found at %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		return ResolveLibraryPath(env)
	}

	libName, err := getLibraryName()
	if err != nil {
		return "", err
	}
	for _, p := range systemLibraryPaths(libName) {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	root, err := findProjectRoot()
	if err != nil {
		return "", err
	}
	libPath := filepath.Join(root, "onnxruntime", "lib", libName)
	if _, err := os.Stat(libPath); err != nil {
		return "", fmt.Errorf("ONNX Runtime library not found at %s", libPath)
	}
	return libPath, nil
}

// EnsureEnvironment initializes the process-wide ONNX Runtime environment
// once. Later calls are no-ops.
func EnsureEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	path, err := ResolveLibraryPath(libraryPath)
	if err != nil {
		return fmt.Errorf("onnx lib path: %w", err)
	}
	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx: %w", err)
	}
	return nil
}

// RuntimeInfo summarizes a successful runtime check.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
}

// CheckRuntime verifies the runtime library can be located and initialized.
func CheckRuntime(libraryPath string) (RuntimeInfo, error) {
	path, err := ResolveLibraryPath(libraryPath)
	if err != nil {
		return RuntimeInfo{}, fmt.Errorf("failed to find ONNX Runtime library: %w", err)
	}
	if err := EnsureEnvironment(path); err != nil {
		return RuntimeInfo{}, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return RuntimeInfo{LibraryPath: path, Version: ort.GetVersion()}, nil
}
