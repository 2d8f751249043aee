// Package workspace resolves on-disk project directories under a single root.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("path escapes workspace")

// Dir is the directory of projectID under root.
func Dir(root, projectID string) (string, error) {
	if projectID == "" || projectID == "." || projectID == ".." ||
		strings.ContainsAny(projectID, `/\`) {
		return "", ErrInvalidPath
	}
	return filepath.Join(root, projectID), nil
}

// Ensure returns Dir and creates it if missing.
func Ensure(root, projectID string) (string, error) {
	dir, err := Dir(root, projectID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// File is the absolute location of rel inside projectID's directory.
func File(root, projectID, rel string) (string, error) {
	dir, err := Dir(root, projectID)
	if err != nil {
		return "", err
	}
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if full == dir || !strings.HasPrefix(full, dir+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}
