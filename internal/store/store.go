// Package store maps rendition pipelines to files under a content-addressed
// cache directory and performs atomic writes into it.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/quillcms/renditions/internal/pipeline"
)

// Store owns the rendition cache tree: <Root>/<Subdir>/<fp[0:2]>/<fp[2:6]>/.
// Sharding on the fingerprint prefix bounds directory fanout.
type Store struct {
	Root   string
	Subdir string
}

// New creates a store rooted at the static folder with the given cache
// subdirectory.
func New(root, subdir string) *Store {
	return &Store{Root: root, Subdir: subdir}
}

// RelPath is the cache-relative path for a pipeline's output.
func (s *Store) RelPath(p *pipeline.Pipeline) string {
	fp := p.Fingerprint
	return filepath.Join(s.Subdir, fp[0:2], fp[2:6], p.Basename())
}

// CacheDir is the directory the janitor sweeps.
func (s *Store) CacheDir() string {
	return filepath.Join(s.Root, s.Subdir)
}

// Resolve computes the pipeline's paths and reports whether the rendition
// already exists. A hit refreshes the file's modification time so the cache
// janitor treats it as recently used.
func (s *Store) Resolve(p *pipeline.Pipeline) (rel, full string, exists bool) {
	rel = s.RelPath(p)
	full = filepath.Join(s.Root, rel)
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return rel, full, false
	}
	now := time.Now()
	if err := os.Chtimes(full, now, now); err != nil {
		zlog.Logger.Warn().Err(err).Str("path", full).Msg("failed to refresh rendition mtime")
	}
	return rel, full, true
}

// WriteAtomic renders into a temporary file in the target directory and
// renames it into place, so concurrent readers never observe partial
// output. Directory creation is idempotent under concurrent creators.
func (s *Store) WriteAtomic(full string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp := full + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp rendition: %w", err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write rendition: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp rendition: %w", err)
	}

	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish rendition: %w", err)
	}
	return nil
}
