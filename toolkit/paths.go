package toolkit

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveWithinRoot resolves path (absolute, or relative to root) and
// refuses anything that escapes root after cleaning. An empty root means
// the current working directory.
func ResolveWithinRoot(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no path provided")
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		root = cwd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve root: %w", err)
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(absRoot, resolved)
	}
	resolved = filepath.Clean(resolved)
	rel, err := filepath.Rel(absRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the project root", path)
	}
	return resolved, nil
}

// isBinaryContent reports whether content looks binary: null bytes, or a
// high ratio of control characters in the leading sample.
func isBinaryContent(content []byte) bool {
	if bytes.ContainsRune(content, 0) {
		return true
	}
	sample := content
	if len(sample) > 512 {
		sample = sample[:512]
	}
	if len(sample) == 0 {
		return false
	}
	control := 0
	for _, b := range sample {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return control > len(sample)/10
}
