// Package rendition is the inbound facade for the rendition engine: the
// routing and template layers call it to resolve image variants, and the
// async endpoint calls it to resume deferred renders.
package rendition

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/quillcms/renditions/internal/geometry"
	"github.com/quillcms/renditions/internal/janitor"
	"github.com/quillcms/renditions/internal/model"
	"github.com/quillcms/renditions/internal/scheduler"
	"github.com/quillcms/renditions/internal/source"
	"github.com/quillcms/renditions/internal/store"
	"github.com/quillcms/renditions/internal/token"
)

// Options carries the URL roots the service builds links under.
type Options struct {
	// StaticURLPath prefixes cache-relative rendition paths.
	StaticURLPath string
	// AsyncURLPath prefixes pending-rendition tokens.
	AsyncURLPath string
}

// Service wires the source registry, scheduler, store and token signer into
// the operations the rest of the application consumes.
type Service struct {
	registry *source.Registry
	sched    *scheduler.Scheduler
	store    *store.Store
	signer   *token.Signer
	opts     Options
}

// New creates the rendition service.
func New(reg *source.Registry, sched *scheduler.Scheduler, st *store.Store, signer *token.Signer, opts Options) *Service {
	return &Service{registry: reg, sched: sched, store: st, signer: signer, opts: opts}
}

// StaticURL maps a cache-relative path to its public URL.
func (s *Service) StaticURL(rel string) string {
	return path.Join(s.opts.StaticURLPath, filepath.ToSlash(rel))
}

func (s *Service) asyncURL(tok string) string {
	return path.Join(s.opts.AsyncURLPath, tok)
}

// StaticFileURL reports whether name is an existing file under the static
// root and returns its URL. Covers pre-existing non-rendition assets hitting
// the async endpoint.
func (s *Service) StaticFileURL(name string) (string, bool) {
	full := filepath.Join(s.store.Root, filepath.FromSlash(name))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", false
	}
	return s.StaticURL(name), true
}

// GetRendition resolves a rendition without doing any work. A cache hit
// returns the cache URL directly; otherwise the caller gets a pending-token
// URL and the actual render is deferred until the client polls the async
// endpoint. This keeps first page responses fast.
func (s *Service) GetRendition(srcPath string, spec model.RenditionSpec, outScale int) (string, geometry.Size, error) {
	rec, err := s.registry.Lookup(srcPath)
	if err != nil {
		return "", geometry.Size{}, err
	}

	res, err := s.sched.Ensure(rec, spec, outScale, false)
	if err != nil {
		return "", geometry.Size{}, err
	}
	if !res.Pending {
		return s.StaticURL(res.RelPath), res.Size, nil
	}

	tok, err := s.signer.Encode(token.Pending{Path: srcPath, Scale: outScale, Spec: spec})
	if err != nil {
		return "", geometry.Size{}, err
	}
	return s.asyncURL(tok), res.Size, nil
}

// RenderAsync eagerly schedules a rendition and reports whether it is still
// pending. Used by the async endpoint on every poll.
func (s *Service) RenderAsync(srcPath string, spec model.RenditionSpec, outScale int) (string, geometry.Size, bool, error) {
	rec, err := s.registry.Lookup(srcPath)
	if err != nil {
		return "", geometry.Size{}, false, err
	}

	res, err := s.sched.Ensure(rec, spec, outScale, true)
	if err != nil {
		return "", geometry.Size{}, false, err
	}
	if res.Pending {
		tok, err := s.signer.Encode(token.Pending{Path: srcPath, Scale: outScale, Spec: spec})
		if err != nil {
			return "", geometry.Size{}, false, err
		}
		return s.asyncURL(tok), res.Size, true, nil
	}
	return s.StaticURL(res.RelPath), res.Size, false, nil
}

// RenderPending decodes a signed token and drives one eager scheduling
// round for it.
func (s *Service) RenderPending(tok string) (string, bool, error) {
	p, err := s.signer.Decode(tok)
	if err != nil {
		return "", false, err
	}
	url, _, pending, err := s.RenderAsync(p.Path, p.Spec, p.Scale)
	return url, pending, err
}

// GetRenditionSync schedules a render and waits, briefly and with a hard
// bound, for the file to appear.
//
// Deprecated: this is the legacy server-side wait; the async endpoint's
// client-driven polling should be used instead.
func (s *Service) GetRenditionSync(srcPath string, spec model.RenditionSpec, outScale int) (string, geometry.Size, error) {
	rec, err := s.registry.Lookup(srcPath)
	if err != nil {
		return "", geometry.Size{}, err
	}

	res, err := s.sched.Ensure(rec, spec, outScale, true)
	if err != nil {
		return "", geometry.Size{}, err
	}
	if !res.Pending {
		return s.StaticURL(res.RelPath), res.Size, nil
	}

	full := filepath.Join(s.store.Root, res.RelPath)
	err = retry.Do(func() error {
		if _, statErr := os.Stat(full); statErr != nil {
			return model.ErrNotReady
		}
		return nil
	}, retry.Strategy{Attempts: 8, Delay: 250 * time.Millisecond, Backoff: 1})
	if err != nil {
		return "", geometry.Size{}, model.ErrNotReady
	}
	return s.StaticURL(res.RelPath), res.Size, nil
}

// CleanCache runs a rendition cache sweep on the shared worker pool so it
// never blocks request handling.
func (s *Service) CleanCache(maxAge time.Duration) {
	dir := s.store.CacheDir()
	s.sched.Submit(func() {
		n := janitor.Sweep(dir, maxAge)
		zlog.Logger.Info().Int("removed", n).Str("dir", dir).Msg("cache sweep finished")
	})
}

// RunJanitor sweeps the cache on a fixed interval until ctx is canceled.
// The caller must wait for it to return before closing the scheduler, since
// every tick submits to the shared pool.
func (s *Service) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanCache(maxAge)
		}
	}
}

// Open classifies a path into its source kind for the template layer.
func (s *Service) Open(srcPath string) source.Image {
	return source.Open(srcPath, s.registry, s, s.StaticURL)
}
