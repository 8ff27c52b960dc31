// Package producer implements the upload client: it finds media files
// under the configured source directories and streams them to the
// ingestion server, backing off when the server's queue is full.
package producer

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Directory names that are never scanned, beyond the dot-prefix rule.
var skippedDirs = map[string]bool{
	"__MACOSX":                  true,
	"System Volume Information": true,
	"$RECYCLE.BIN":              true,
	"lost+found":                true,
}

// Discover walks the given roots recursively and returns every regular,
// non-hidden file. Hidden and system directories are skipped whole.
func Discover(roots []string, log zerolog.Logger) []string {
	var files []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("scan error, skipping")
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("source scan failed")
		}
	}
	return files
}
