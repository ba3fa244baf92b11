package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileAdapter is an Adapter over a local directory. Writes are fsynced
// before they return.
type FileAdapter struct {
	root string
}

func NewFileAdapter(root string) *FileAdapter {
	return &FileAdapter{root: root}
}

func (a *FileAdapter) resolve(path string) (string, error) {
	if err := ValidatePath(path); err != nil {
		return "", err
	}
	return filepath.Join(a.root, filepath.FromSlash(path)), nil
}

func (a *FileAdapter) Exists(ctx context.Context, path string) (bool, error) {
	full, err := a.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func (a *FileAdapter) Read(ctx context.Context, path string) ([]byte, error) {
	full, err := a.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (a *FileAdapter) Write(ctx context.Context, path string, data []byte) error {
	full, err := a.resolve(path)
	if err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return f.Close()
}

func (a *FileAdapter) Mkdir(ctx context.Context, path string) error {
	full, err := a.resolve(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

// Remove deletes path. A missing path is not an error.
func (a *FileAdapter) Remove(ctx context.Context, path string) error {
	full, err := a.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Rename replaces to with from atomically on POSIX filesystems.
func (a *FileAdapter) Rename(ctx context.Context, from, to string) error {
	src, err := a.resolve(from)
	if err != nil {
		return err
	}
	dst, err := a.resolve(to)
	if err != nil {
		return err
	}
	return os.Rename(src, dst)
}
