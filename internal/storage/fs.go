package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/shatag/internal/apperr"
	"github.com/starford/shatag/internal/models"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the tree root
	real string // root with symlinks evaluated
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &FS{root: abs, real: real}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrInvalidPath)
	}
	abs := filepath.Join(f.root, cleaned)
	if !f.contains(abs) {
		return "", fmt.Errorf("storage: path escapes root: %s: %w", rel, apperr.ErrInvalidPath)
	}
	return abs, nil
}

func (f *FS) contains(abs string) bool {
	return within(f.root, abs)
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(os.PathSeparator))
}

// confine rejects abs when a symlinked directory on its way leads outside
// the root.
func (f *FS) confine(rel, abs string) error {
	real, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s: %w", rel, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("storage: resolve %s: %w", rel, err)
	}
	if !within(f.real, real) {
		return fmt.Errorf("storage: path escapes root: %s: %w", rel, apperr.ErrInvalidPath)
	}
	return nil
}

// Resolve returns the absolute path of the regular file at path.
// The file itself must not be a symlink, and no directory on the way may
// lead outside the root.
func (f *FS) Resolve(path string) (string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Lstat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("storage: %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("storage: not a regular file: %s: %w", path, apperr.ErrInvalidPath)
	}
	if err := f.confine(path, abs); err != nil {
		return "", err
	}
	return abs, nil
}

// Rel returns abs relative to the root, with forward slashes.
func (f *FS) Rel(abs string) (string, error) {
	if !f.contains(abs) {
		return "", fmt.Errorf("storage: outside root: %s: %w", abs, apperr.ErrInvalidPath)
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// List walks dir (relative to root) and returns every regular file, in
// lexical order. Symlinks and special files are skipped.
func (f *FS) List(dir string) ([]models.FileMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	if err := f.confine(dir, base); err != nil {
		return nil, err
	}
	var out []models.FileMeta
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, models.FileMeta{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}
