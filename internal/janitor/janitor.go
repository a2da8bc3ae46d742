// Package janitor expires stale rendition cache entries. Every cache hit
// refreshes a file's modification time, so mtime age is idle time.
package janitor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/wb-go/wbf/zlog"
)

// Sweep deletes files under dir whose modification time is older than
// maxAge and prunes directories left empty, depth first. I/O errors are
// logged and skipped; the sweep always continues. Returns the number of
// files removed.
func Sweep(dir string, maxAge time.Duration) int {
	threshold := time.Now().Add(-maxAge)
	removed, _ := sweepDir(dir, threshold, false)
	return removed
}

// sweepDir processes one directory and reports whether it is empty
// afterwards. The root itself is never removed.
func sweepDir(dir string, threshold time.Time, removable bool) (removed int, empty bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		zlog.Logger.Warn().Err(err).Str("dir", dir).Msg("cache sweep: cannot read directory")
		return 0, false
	}

	remaining := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		if e.IsDir() {
			n, subEmpty := sweepDir(path, threshold, true)
			removed += n
			if !subEmpty {
				remaining++
			}
			continue
		}

		info, err := e.Info()
		if err != nil {
			remaining++
			continue
		}
		if info.ModTime().Before(threshold) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				zlog.Logger.Warn().Err(err).Str("path", path).Msg("cache sweep: cannot remove file")
				remaining++
				continue
			}
			zlog.Logger.Info().Str("path", path).Msg("expired stale rendition")
			removed++
		} else {
			remaining++
		}
	}

	if remaining == 0 && removable {
		if err := os.Remove(dir); err != nil {
			zlog.Logger.Warn().Err(err).Str("dir", dir).Msg("cache sweep: cannot remove directory")
			return removed, false
		}
		zlog.Logger.Info().Str("dir", dir).Msg("removed empty cache directory")
		return removed, true
	}
	return removed, remaining == 0
}
