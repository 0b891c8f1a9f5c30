package indexer

import (
	"os"
	"strings"
	"time"
)

// isHidden reports whether a file or directory name is hidden in the
// dot-prefix convention.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// fileCreationTime returns the best available creation time for a file.
// True birth time isn't portably exposed, so the mod time stands in; the
// catalog field is informational only.
func fileCreationTime(info os.FileInfo) time.Time {
	return info.ModTime().UTC()
}
