// Package state centralizes filesystem locations for GoApply runtime
// artifacts: session state records, pipeline reports, and screenshots.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the default runtime state root.
	StateDirEnv = "GOAPPLY_STATE_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "goapply"
)

// RootDir returns the runtime state root for GoApply.
// Resolution order:
//  1. GOAPPLY_STATE_DIR (if set)
//  2. XDG_STATE_HOME/goapply (if XDG_STATE_HOME is set)
//  3. os.UserConfigDir()/goapply (cross-platform fallback)
func RootDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv(StateDirEnv)); override != "" {
		return normalizePath(override)
	}

	if xdg := strings.TrimSpace(os.Getenv(xdgStateHomeEnv)); xdg != "" {
		root, err := normalizePath(xdg)
		if err != nil {
			return "", err
		}
		return filepath.Join(root, appName), nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	root, err := normalizePath(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, appName), nil
}

// SessionsDir returns the directory holding one JSON file per resumable
// Application Session State record.
func SessionsDir() (string, error) {
	return InRoot("sessions")
}

// ReportsDir returns the directory holding one JSON file per pipeline run,
// named pipeline_report_YYYYMMDD_HHMMSS.json.
func ReportsDir() (string, error) {
	return InRoot("reports")
}

// ScreenshotsDir returns the directory for adapter screenshot output.
func ScreenshotsDir() (string, error) {
	return InRoot("screenshots")
}

// IndexDBFile returns the path to the sqlite secondary index shared by the
// intervention store and the session state store.
func IndexDBFile() (string, error) {
	return InRoot("index.db")
}

// InRoot returns a path rooted under RootDir with additional path elements.
func InRoot(parts ...string) (string, error) {
	root, err := RootDir()
	if err != nil {
		return "", err
	}
	all := make([]string, 0, len(parts)+1)
	all = append(all, root)
	all = append(all, parts...)
	return filepath.Join(all...), nil
}

// EnsureDir creates dir (and parents) if it does not already exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %q: %w", path, err)
	}
	return filepath.Clean(absPath), nil
}
