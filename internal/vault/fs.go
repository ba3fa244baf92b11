package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
)

// FS is a directory-backed Store. Document ids are slash-separated paths
// relative to the root.
type FS struct {
	root        string
	include     []glob.Glob
	exclude     []glob.Glob
	maxFileSize int64
	adapter     *FileAdapter
	logger      *slog.Logger
}

// NewFS compiles the include/exclude patterns of cfg. Patterns match the
// relative id with '/' as separator, so "*.md" only matches top-level files
// and "**.md" matches at any depth.
func NewFS(cfg config.VaultConfig, logger *slog.Logger) (*FS, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault root %s: %w", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening vault root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: vault root %s is not a directory", apperrors.ErrInvalidConfig, root)
	}
	include, err := compileGlobs(cfg.IncludePatterns)
	if err != nil {
		return nil, err
	}
	exclude, err := compileGlobs(cfg.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FS{
		root:        root,
		include:     include,
		exclude:     exclude,
		maxFileSize: cfg.MaxFileSize,
		adapter:     NewFileAdapter(root),
		logger:      logger.With("component", "fs-vault"),
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", apperrors.ErrInvalidConfig, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Matches reports whether the relative id passes the include and exclude
// patterns.
func (v *FS) Matches(id string) bool {
	for _, g := range v.exclude {
		if g.Match(id) {
			return false
		}
	}
	if len(v.include) == 0 {
		return true
	}
	for _, g := range v.include {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// List walks the root in lexical order. Hidden directories, unmatched files
// and files above the size limit are skipped.
func (v *FS) List(ctx context.Context) ([]DocumentInfo, error) {
	var docs []DocumentInfo
	err := filepath.WalkDir(v.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			v.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != v.root && len(d.Name()) > 0 && d.Name()[0] == '.' {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(v.root, path)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)
		if !v.Matches(id) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if v.maxFileSize > 0 && info.Size() > v.maxFileSize {
			v.logger.Warn("skipping oversized document", "id", id, "size", info.Size(), "limit", v.maxFileSize)
			return nil
		}
		docs = append(docs, DocumentInfo{ID: id, ModTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing vault %s: %w", v.root, err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (v *FS) Read(ctx context.Context, id string) (string, error) {
	if err := ValidatePath(id); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(v.root, filepath.FromSlash(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
		}
		return "", fmt.Errorf("reading %s: %w", id, err)
	}
	return string(data), nil
}

// Stat returns the DocumentInfo of a single id.
func (v *FS) Stat(id string) (DocumentInfo, error) {
	if err := ValidatePath(id); err != nil {
		return DocumentInfo{}, err
	}
	info, err := os.Stat(filepath.Join(v.root, filepath.FromSlash(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return DocumentInfo{}, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
		}
		return DocumentInfo{}, err
	}
	return DocumentInfo{ID: id, ModTime: info.ModTime(), Size: info.Size()}, nil
}

// ID converts an absolute path under the root into a document id.
func (v *FS) ID(path string) (string, bool) {
	rel, err := filepath.Rel(v.root, path)
	if err != nil || rel == "." {
		return "", false
	}
	id := filepath.ToSlash(rel)
	if ValidatePath(id) != nil {
		return "", false
	}
	return id, true
}

func (v *FS) Adapter() Adapter { return v.adapter }
func (v *FS) BaseDir() string  { return v.root }
