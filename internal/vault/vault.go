// Package vault defines the document source and key-value storage
// collaborators of the similarity index, with filesystem, in-memory,
// PostgreSQL and Redis backends.
package vault

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

// DocumentInfo describes one indexable document.
type DocumentInfo struct {
	ID      string
	ModTime time.Time
	Size    int64
}

// Vault enumerates documents and reads their content.
type Vault interface {
	List(ctx context.Context) ([]DocumentInfo, error)
	Read(ctx context.Context, id string) (string, error)
}

// Adapter is the key-value file store used for cache persistence. Paths are
// slash separated and relative to the adapter's base.
type Adapter interface {
	Exists(ctx context.Context, path string) (bool, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
}

// Store is a Vault that also owns a cache adapter and base directory.
type Store interface {
	Vault
	Adapter() Adapter
	BaseDir() string
}

// ValidatePath rejects empty, absolute and traversing paths as well as
// repeated slashes.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: empty path", apperrors.ErrInvalidPath)
	case strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\`):
		return fmt.Errorf("%w: absolute path %q", apperrors.ErrInvalidPath, p)
	case strings.Contains(p, "//") || strings.Contains(p, `\\`):
		return fmt.Errorf("%w: repeated separator in %q", apperrors.ErrInvalidPath, p)
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return fmt.Errorf("%w: traversal in %q", apperrors.ErrInvalidPath, p)
		}
	}
	return nil
}

// Join joins slash-separated path segments, skipping empty ones.
func Join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "/")
}
