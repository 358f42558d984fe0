// Package security validates operator-supplied filesystem paths before the
// pipelines touch them.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory rejects paths that resolve outside safeDir.
// Symlinks are resolved first so a link inside safeDir cannot smuggle the
// access out of it; for paths that do not exist yet the nearest existing
// parent is resolved instead.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(absSafeDir); err == nil {
		absSafeDir = resolved
	}

	canonical, err := resolveExisting(absPath)
	if err != nil {
		return err
	}

	if canonical != absSafeDir && !strings.HasPrefix(canonical, absSafeDir+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes directory %q", filePath, safeDir)
	}
	return nil
}

// resolveExisting resolves symlinks in path, falling back to the nearest
// existing ancestor plus the remaining components when path is absent.
func resolveExisting(absPath string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved, nil
	}

	dir := absPath
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return absPath, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, err := filepath.Rel(parent, absPath)
			if err != nil {
				return "", fmt.Errorf("failed to resolve path: %w", err)
			}
			return filepath.Join(resolved, rel), nil
		}
		dir = parent
	}
}
