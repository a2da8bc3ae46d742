// Package source tracks the images that renditions are derived from. A
// Registry fingerprints local files so every cached rendition is invalidated
// when the source bytes (or the processing logic version) change.
package source

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/wb-go/wbf/zlog"

	"github.com/quillcms/renditions/internal/model"
)

// RenditionVersion salts every fingerprint. Bump it whenever defaults or
// processing behavior change so stale cache entries stop matching.
const RenditionVersion = 1

// Record is the indexed state of one local source image. A record is
// refreshed whenever the file's modification time advances past the stored
// value; its fingerprint is the invalidation key for every derived
// rendition.
type Record struct {
	Path        string
	Width       int
	Height      int
	Fingerprint string
	Transparent bool
	Paletted    bool
	ModTime     time.Time
}

// FingerprintSuffix is the short tail of the fingerprint used in rendition
// filenames.
func (r *Record) FingerprintSuffix() string {
	if len(r.Fingerprint) <= 10 {
		return r.Fingerprint
	}
	return r.Fingerprint[len(r.Fingerprint)-10:]
}

// Registry caches Records by path. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Lookup returns the record for a source path, refreshing it if the file
// changed since it was last observed. A missing file yields
// model.ErrSourceNotFound.
func (g *Registry) Lookup(path string) (*Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", model.ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("stat source %s: %w", path, err)
	}

	g.mu.Lock()
	rec, ok := g.records[path]
	g.mu.Unlock()
	if ok && !info.ModTime().After(rec.ModTime) {
		return rec, nil
	}

	rec, err = index(path, info.ModTime())
	if err != nil {
		return nil, err
	}
	zlog.Logger.Info().
		Str("path", path).
		Str("fingerprint", rec.Fingerprint).
		Msg("indexed source image")

	g.mu.Lock()
	g.records[path] = rec
	g.mu.Unlock()
	return rec, nil
}

// index reads and decodes the file once, computing the salted content hash
// and the pixel attributes the pipeline builder needs.
func index(path string, modTime time.Time) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source %s: %w", path, err)
	}

	sum := md5.New()
	fmt.Fprintf(sum, "%d,", RenditionVersion)
	sum.Write(data)

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source %s: %w", path, err)
	}

	bounds := img.Bounds()
	rec := &Record{
		Path:        path,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Fingerprint: hex.EncodeToString(sum.Sum(nil)),
		ModTime:     modTime,
	}

	if _, ok := img.(*image.Paletted); ok {
		rec.Paletted = true
	}
	if op, ok := img.(interface{ Opaque() bool }); ok {
		rec.Transparent = !op.Opaque()
	}
	return rec, nil
}
