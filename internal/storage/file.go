package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"civicrelay/internal/security"
)

// FileStore keeps every key as a file below a root directory. Presence of the
// file is the only state, matching the on-disk layout operators inspect by hand.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := security.ValidateFilePath(root); err != nil {
		return nil, fmt.Errorf("invalid storage root: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) List(ctx context.Context, prefix string) ([]string, error) {
	dir := prefix
	if !strings.HasSuffix(prefix, "/") {
		dir = path.Dir(prefix)
	}
	dir = strings.TrimSuffix(dir, "/")

	start := s.root
	if dir != "" && dir != "." {
		resolved, err := security.ResolveWithinBase(s.root, dir)
		if err != nil {
			return nil, err
		}
		start = resolved
	}

	var keys []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedCopy(keys), nil
}

func (s *FileStore) Read(_ context.Context, key string) ([]byte, error) {
	p, err := security.ResolveWithinBase(s.root, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 - path resolved within store root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write replaces the file atomically through a hidden temp file.
func (s *FileStore) Write(_ context.Context, key string, data []byte) error {
	p, err := security.ResolveWithinBase(s.root, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	tmp := filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+".tmp")
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (s *FileStore) Move(_ context.Context, src, dst string) error {
	from, err := security.ResolveWithinBase(s.root, src)
	if err != nil {
		return err
	}
	to, err := security.ResolveWithinBase(s.root, dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(from); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
		return err
	}
	return os.Rename(from, to)
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := security.ResolveWithinBase(s.root, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := security.ResolveWithinBase(s.root, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FileStore) Close() error {
	return nil
}
