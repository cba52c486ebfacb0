package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile replaces the file at path with data in one step: readers
// see either the previous content or the new content, never a partial
// write. The data goes to a temp file in the same directory (rename does
// not cross filesystems) which is fsynced before it moves into place.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".dmux-write-*")
	if err != nil {
		return fmt.Errorf("staging %s: %w", filepath.Base(path), err)
	}
	if err := writeAndSync(tmp, data, perm); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("staging %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeAndSync fills the temp file and forces it to disk. The file is
// closed on success; the caller cleans up on error.
func writeAndSync(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return f.Close()
}
