package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WithTempDir creates a private work directory, runs fn inside it and removes
// the directory on every exit path, panics included.
func WithTempDir(prefix string, fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	return fn(dir)
}

// WriteSource writes code to dir/name and returns the absolute path.
func WriteSource(dir, name, code string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil { // #nosec G306 -- container users must read the file
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", name, err)
	}
	return abs, nil
}

// WithTempFile writes code to a uniquely named file carrying suffix and calls
// fn with its path. The file and its directory are gone when WithTempFile returns.
func WithTempFile(code, suffix string, fn func(path string) error) error {
	return WithTempDir("grader", func(dir string) error {
		path, err := WriteSource(dir, "src-"+uuid.New().String()[:8]+suffix, code)
		if err != nil {
			return err
		}
		return fn(path)
	})
}
