// Package storage abstracts the key/blob persistence behind queues, receipts,
// baseline ledgers and media. Keys are relative slash separated paths; listing
// is by string prefix and always returns keys in lexicographic order.
package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned by Read and Move when the key does not exist.
var ErrNotFound = errors.New("storage: key not found")

type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Move(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Join builds a storage key from path segments.
func Join(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// Base returns the last segment of a key.
func Base(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

func sortedCopy(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}
