package utils

import (
	"path/filepath"
	"strings"
)

// FileNameWithoutExt returns the base name of a path with its extension
// stripped, used as the default document title on ingest.
func FileNameWithoutExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
