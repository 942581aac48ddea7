// Package safepath resolves and validates destination paths so that
// template rendering, codemods, and actions can never write outside a
// recipe's working directory — including via a symlink planted partway
// down the path.
package safepath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Resolve validates path against baseDir and returns the absolute
// destination. It rejects absolute paths, `..` escapes, and symlink
// escapes, resolving every symlink in the chain rather than trusting the
// final component alone.
func Resolve(baseDir, path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", path)
	}

	realBase, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	realBase, err = filepath.Abs(realBase)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute base path: %w", err)
	}

	fullPath := filepath.Join(baseDir, filepath.Clean(path))

	realPath, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		// The destination doesn't exist yet — a template/codemod write
		// target commonly won't — so resolve its parent instead.
		parentDir := filepath.Dir(fullPath)
		realParent, parentErr := filepath.EvalSymlinks(parentDir)
		if parentErr != nil {
			realParent, parentErr = resolveExistingParent(parentDir)
			if parentErr != nil {
				return "", fmt.Errorf("failed to resolve path: %w", parentErr)
			}
		}
		realParent, _ = filepath.Abs(realParent)

		if !isWithin(realParent, realBase) {
			return "", fmt.Errorf("path escapes working directory via symlink: %s", path)
		}
		return fullPath, nil
	}

	realPath, _ = filepath.Abs(realPath)
	if !isWithin(realPath, realBase) {
		return "", fmt.Errorf("path escapes working directory via symlink: %s", path)
	}
	return fullPath, nil
}

func resolveExistingParent(path string) (string, error) {
	for {
		parent := filepath.Dir(path)
		if parent == path {
			return filepath.EvalSymlinks(parent)
		}
		resolved, err := filepath.EvalSymlinks(parent)
		if err == nil {
			return resolved, nil
		}
		path = parent
	}
}

func isWithin(path, base string) bool {
	if !strings.HasSuffix(base, string(filepath.Separator)) {
		base += string(filepath.Separator)
	}
	return path == strings.TrimSuffix(base, string(filepath.Separator)) ||
		strings.HasPrefix(path, base)
}
