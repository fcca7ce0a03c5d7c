package security

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ValidateFilePath validates that a file path is safe and doesn't contain directory traversal attempts
func ValidateFilePath(p string) error {
	if p == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("file path contains NUL byte")
	}

	for _, segment := range strings.Split(filepath.ToSlash(p), "/") {
		if segment == ".." {
			return fmt.Errorf("path contains directory traversal: %s", p)
		}
	}

	return nil
}

// ValidateKey checks a storage key: a relative, slash separated path that
// stays inside the store root.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage key cannot be empty")
	}
	if strings.ContainsRune(key, 0) || strings.Contains(key, `\`) {
		return fmt.Errorf("storage key contains invalid characters: %q", key)
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("storage key must be relative: %s", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("storage key is not canonical: %s", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." || segment == "." {
			return fmt.Errorf("storage key contains directory traversal: %s", key)
		}
	}
	return nil
}

// ResolveWithinBase maps a storage key onto a file below baseDir.
func ResolveWithinBase(baseDir, key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	cleanBase := filepath.Clean(baseDir)
	full := filepath.Join(cleanBase, filepath.FromSlash(key))

	rel, err := filepath.Rel(cleanBase, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", key)
	}
	return full, nil
}
