package tiller

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotExist reports a read or stat of an absent path. Implementations
// must return an error matching this (via errors.Is) so wrappers can tell
// absence apart from failure.
var ErrNotExist = errors.New("workspace: path does not exist")

// FileStat describes a workspace path.
type FileStat struct {
	IsFile      bool  `json:"is_file"`
	IsDirectory bool  `json:"is_directory"`
	MTimeMS     int64 `json:"mtime_ms,omitempty"`
	Size        int64 `json:"size,omitempty"`
}

// Workspace is the uniform file-effect surface tools operate on. Paths are
// workspace-relative unless absolute; bytes are opaque. Implementations:
//
//   - workspace/localfs: the operating system filesystem under a root
//   - JournalWorkspace: wraps a base, records inverse ops for rollback
//   - PreviewWorkspace: wraps a base, buffers effects until commit
type Workspace interface {
	// ReadFile returns the file's bytes, or an ErrNotExist-matching error.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// WriteFile writes bytes, creating missing parent directories.
	WriteFile(ctx context.Context, path string, data []byte) error
	// DeletePath removes a file or directory recursively. Removing an
	// absent path is not an error.
	DeletePath(ctx context.Context, path string) error
	// RenamePath moves from to to, creating parent directories of to.
	RenamePath(ctx context.Context, from, to string) error
	// Stat describes a path, or returns nil for an absent one.
	Stat(ctx context.Context, path string) (*FileStat, error)
	// ListFiles returns file paths matching glob ("" matches everything).
	ListFiles(ctx context.Context, glob string) ([]string, error)
}

// IsNotExist reports whether err denotes an absent workspace path.
func IsNotExist(err error) bool { return errors.Is(err, ErrNotExist) }

// NotExistError builds an ErrNotExist-matching error for path.
func NotExistError(path string) error {
	return fmt.Errorf("%w: %s", ErrNotExist, path)
}

// readIfExists returns (bytes, true) when path holds a file, (nil, false)
// when absent, and an error otherwise.
func readIfExists(ctx context.Context, ws Workspace, path string) ([]byte, bool, error) {
	data, err := ws.ReadFile(ctx, path)
	if err != nil {
		if IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}
