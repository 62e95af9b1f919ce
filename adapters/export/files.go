package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ensureResultsDir creates the output directory when missing
func ensureResultsDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// fileLocked reports whether an existing file rejects append access.
// Excel holds result workbooks open with an exclusive lock, which is
// the usual cause.
func fileLocked(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return true
	}
	f.Close()
	return false
}

// availableFilename returns path itself when writable, otherwise the
// first numbered variant that is. After 99 attempts it falls back to
// the first variant and lets the write fail loudly.
func availableFilename(path string) string {
	if !fileLocked(path) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; i < 100; i++ {
		candidate := fmt.Sprintf("%s_%02d%s", base, i, ext)
		if !fileLocked(candidate) {
			return candidate
		}
	}
	return fmt.Sprintf("%s_01%s", base, ext)
}
