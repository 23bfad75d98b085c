package file

import (
	"fmt"
	"os"
	"path/filepath"
)

// Precondition is checked right before the destination is replaced.
// Returning an error aborts the write and leaves the destination untouched.
type Precondition func() error

// WriteAtomic replaces path with data. It writes a temp file in the same
// directory, fsyncs it and renames it over the destination, so readers see
// either the old or the new content. The destination's permissions are kept
// when it already exists.
func WriteAtomic(path string, data []byte, check Precondition) error {
	dir := filepath.Dir(path)
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	// Same directory: rename is only atomic within one filesystem.
	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
