//go:build windows

package state

import (
	"os"
	"path/filepath"
)

// writeFileAtomic approximates atomic replacement on Windows, where rename
// over an existing file needs the destination removed first.
func writeFileAtomic(path string, data []byte, perm uint32) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, fileMode(perm)); err != nil {
		return err
	}
	os.Remove(path)
	return os.Rename(tmpName, path)
}
