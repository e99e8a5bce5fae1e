// Package security guards file access made on behalf of workflow steps.
package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinBoundary ensures that targetPath is within or equal to boundaryPath.
// This prevents path traversal where a path escapes the intended directory
// using "../" sequences.
//
// Example:
//
//	boundary := "/srv/agentflow/files"
//	target := "/srv/agentflow/files/invoices/march.pdf"  // valid
//	target := "/srv/agentflow/files/../../../etc/passwd"  // rejected
func ValidatePathWithinBoundary(boundaryPath, targetPath string) error {
	absBoundary, err := filepath.Abs(boundaryPath)
	if err != nil {
		return fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}

	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return fmt.Errorf("failed to resolve target path %q: %w", targetPath, err)
	}

	rel, err := filepath.Rel(absBoundary, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absBoundary, absTarget, err)
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %q escapes boundary %q", targetPath, boundaryPath)
	}

	return nil
}

// ResolveWithin resolves targetPath against boundaryPath and returns the
// absolute path if it stays inside the boundary. Relative targets are taken
// relative to the boundary. Symlinks of existing files are followed before
// the check.
func ResolveWithin(boundaryPath, targetPath string) (string, error) {
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(boundaryPath, targetPath)
	}
	if err := ValidatePathWithinBoundary(boundaryPath, targetPath); err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(targetPath)
	if errors.Is(err, fs.ErrNotExist) {
		return filepath.Abs(targetPath)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", targetPath, err)
	}

	realBoundary, err := filepath.EvalSymlinks(boundaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve boundary path %q: %w", boundaryPath, err)
	}
	if err := ValidatePathWithinBoundary(realBoundary, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// IsRegularFile reports whether path names an existing regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
