//go:build !windows

package state

import (
	"github.com/google/renameio/v2"
)

// writeFileAtomic writes data to path atomically via a same-directory
// temp file and rename, so readers never observe a partial artifact.
func writeFileAtomic(path string, data []byte, perm uint32) error {
	return renameio.WriteFile(path, data, fileMode(perm))
}
