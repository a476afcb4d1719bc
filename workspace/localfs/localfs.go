// Package localfs implements the workspace contract on the operating system
// filesystem, sandboxed under a root directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tillerhq/tiller"
)

// Workspace is a sandboxed view of the filesystem rooted at a directory.
// Relative paths resolve under the root; absolute paths and traversal out of
// the root are rejected.
type Workspace struct {
	root string
}

// New creates a workspace rooted at root. The directory is created if it
// does not exist.
func New(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("localfs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: create root: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute sandbox root.
func (w *Workspace) Root() string { return w.root }

// resolve maps a workspace path onto the filesystem, refusing escapes.
func (w *Workspace) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("localfs: absolute paths not allowed: %s", path)
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("localfs: path escapes workspace: %s", path)
	}
	resolved := filepath.Join(w.root, cleaned)
	if resolved != w.root && !strings.HasPrefix(resolved, w.root+string(filepath.Separator)) {
		return "", fmt.Errorf("localfs: path escapes workspace: %s", path)
	}
	return resolved, nil
}

func (w *Workspace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, tiller.NotExistError(path)
	}
	return data, err
}

func (w *Workspace) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("localfs: mkdir: %w", err)
	}
	return os.WriteFile(resolved, data, 0o644)
}

func (w *Workspace) DeletePath(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return err
	}
	// RemoveAll succeeds on absent paths, matching the contract.
	return os.RemoveAll(resolved)
}

func (w *Workspace) RenamePath(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fromResolved, err := w.resolve(from)
	if err != nil {
		return err
	}
	toResolved, err := w.resolve(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(toResolved), 0o755); err != nil {
		return fmt.Errorf("localfs: mkdir: %w", err)
	}
	if err := os.Rename(fromResolved, toResolved); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return tiller.NotExistError(from)
		}
		return err
	}
	return nil
}

func (w *Workspace) Stat(ctx context.Context, path string) (*tiller.FileStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resolved, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tiller.FileStat{
		IsFile:      info.Mode().IsRegular(),
		IsDirectory: info.IsDir(),
		MTimeMS:     info.ModTime().UnixMilli(),
		Size:        info.Size(),
	}, nil
}

// ListFiles walks the sandbox and returns workspace-relative file paths
// matching glob. Doublestar patterns ("src/**/*.go") are supported; the
// empty glob matches everything.
func (w *Workspace) ListFiles(ctx context.Context, glob string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if glob != "" {
			ok, err := doublestar.Match(glob, rel)
			if err != nil {
				return fmt.Errorf("localfs: bad glob %q: %w", glob, err)
			}
			if !ok {
				return nil
			}
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Compile-time interface check.
var _ tiller.Workspace = (*Workspace)(nil)
