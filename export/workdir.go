package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const workDirAttempts = 3

// WorkDir is a job-owned scratch directory. Release removes it and everything in it.
type WorkDir struct {
	Path string
}

// AcquireWorkDir creates a fresh directory under root named tmp_<unix millis>_<random>.
// The leaf is created with Mkdir so two jobs can never share a directory.
func AcquireWorkDir(root string, now time.Time) (*WorkDir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating export root %s: %w", root, err)
	}

	var lastErr error
	for range workDirAttempts {
		name := fmt.Sprintf("tmp_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
		path := filepath.Join(root, name)
		err := os.Mkdir(path, 0o700)
		if err == nil {
			return &WorkDir{Path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating work dir: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("allocating unique work dir: %w", lastErr)
}

// Write stores a document in the directory under name.
func (w *WorkDir) Write(name string, data []byte) (string, error) {
	path := filepath.Join(w.Path, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// Release removes the directory recursively. Safe to call more than once.
func (w *WorkDir) Release() error {
	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("removing work dir %s: %w", w.Path, err)
	}
	return nil
}
