package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists indicates the target name is already taken.
var ErrExists = errors.New("artifact already exists")

// Local writes artifacts below a root directory on the local filesystem.
type Local struct {
	root string
}

// NewLocal prepares root, creating it when absent.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("storage root must not be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the configured root directory.
func (l *Local) Root() string {
	return l.root
}

// Save streams reader into a new file called name and returns its path and
// size. Names are created exclusively, so an existing file is never replaced.
func (l *Local) Save(ctx context.Context, name string, reader io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	clean := filepath.Base(filepath.Clean("/" + name))
	if clean == "/" || clean == "." {
		return "", 0, fmt.Errorf("invalid artifact name %q", name)
	}

	path := filepath.Join(l.root, clean)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", 0, ErrExists
		}
		return "", 0, fmt.Errorf("create artifact: %w", err)
	}

	written, err := io.Copy(file, reader)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", written, fmt.Errorf("write artifact: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", written, fmt.Errorf("close artifact: %w", err)
	}

	return path, written, nil
}

// Remove deletes a stored artifact; missing files are ignored.
func (l *Local) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
