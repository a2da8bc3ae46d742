// Package scheduler coordinates rendition rendering: cache-hit
// short-circuiting, per-source mutual exclusion, and a bounded worker pool
// shared by all render jobs and the cache janitor.
package scheduler

import (
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/wb-go/wbf/zlog"

	"github.com/quillcms/renditions/internal/geometry"
	"github.com/quillcms/renditions/internal/model"
	"github.com/quillcms/renditions/internal/pipeline"
	"github.com/quillcms/renditions/internal/source"
	"github.com/quillcms/renditions/internal/store"
)

// queueDepth bounds how many jobs may sit waiting for a worker. Submitters
// block once it fills, which only happens under pathological load.
const queueDepth = 1024

// Result reports the outcome of an Ensure call.
type Result struct {
	RelPath string
	Size    geometry.Size
	Pending bool
}

// Scheduler owns the worker pool. Construct one per process and pass it
// down; the pool starts lazily on first use and Close is optional.
type Scheduler struct {
	store         *store.Store
	workers       int
	defaultFilter string

	startOnce sync.Once
	jobs      chan func()
	wg        sync.WaitGroup

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]struct{}

	// onRender is a test seam observing successful encodes.
	onRender func(path string)
}

// New creates a scheduler with the given pool size writing through st.
// A non-positive size means one worker per CPU.
func New(st *store.Store, workers int, defaultFilter string) *Scheduler {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{
		store:         st,
		workers:       workers,
		defaultFilter: defaultFilter,
		locks:         make(map[string]*sync.Mutex),
		inflight:      make(map[string]struct{}),
	}
}

func (s *Scheduler) start() {
	s.startOnce.Do(func() {
		zlog.Logger.Info().Int("workers", s.workers).Msg("starting render pool")
		s.jobs = make(chan func(), queueDepth)
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				for job := range s.jobs {
					job()
				}
			}()
		}
	})
}

// Submit queues a job on the shared pool. Used directly by the cache
// janitor so maintenance never blocks request handling.
func (s *Scheduler) Submit(job func()) {
	s.start()
	s.jobs <- job
}

// Close drains the pool and waits for outstanding jobs. Only call after no
// further Submit or Ensure can occur.
func (s *Scheduler) Close() {
	s.start()
	close(s.jobs)
	s.wg.Wait()
}

// sourceLock returns the mutex serializing renders of one source image.
func (s *Scheduler) sourceLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[path]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[path] = lk
	}
	return lk
}

// Ensure resolves a rendition, scheduling a render when needed.
//
// If the file exists the result is immediate and not pending. With eager
// false no work is enqueued; the caller hands the client a pending token
// instead. With eager true a render job is submitted unless one for the
// same output path is already outstanding.
func (s *Scheduler) Ensure(rec *source.Record, spec model.RenditionSpec, outScale int, eager bool) (Result, error) {
	p, err := pipeline.Build(rec, spec, outScale, s.defaultFilter)
	if err != nil {
		return Result{}, err
	}

	rel, full, exists := s.store.Resolve(p)
	if exists {
		return Result{RelPath: rel, Size: p.Size}, nil
	}
	if !eager {
		return Result{RelPath: rel, Size: p.Size, Pending: true}, nil
	}

	s.mu.Lock()
	_, outstanding := s.inflight[full]
	if !outstanding {
		s.inflight[full] = struct{}{}
	}
	s.mu.Unlock()

	if !outstanding {
		s.Submit(func() {
			defer func() {
				s.mu.Lock()
				delete(s.inflight, full)
				s.mu.Unlock()
			}()
			s.render(rec, p, full)
		})
	}
	return Result{RelPath: rel, Size: p.Size, Pending: true}, nil
}

// render runs one decode-transform-encode cycle. The per-source lock
// serializes renders of the same image while different images proceed in
// parallel up to pool size. Errors are logged and the job ends without
// output; the next client request re-triggers scheduling.
func (s *Scheduler) render(rec *source.Record, p *pipeline.Pipeline, full string) {
	lk := s.sourceLock(rec.Path)
	lk.Lock()
	defer lk.Unlock()

	// A concurrent job may have just produced this exact file.
	if _, err := os.Stat(full); err == nil {
		return
	}

	zlog.Logger.Info().Str("source", rec.Path).Str("target", full).Msg("rendering")

	img, err := imaging.Open(rec.Path, imaging.AutoOrientation(true))
	if err != nil {
		zlog.Logger.Err(err).Str("source", rec.Path).Str("target", full).Msg("failed to decode source")
		return
	}
	for _, step := range p.Steps {
		img = step.Apply(img)
	}

	err = s.store.WriteAtomic(full, func(w io.Writer) error {
		return imaging.Encode(w, img, p.Format, p.SaveOpts...)
	})
	if err != nil {
		zlog.Logger.Err(err).Str("source", rec.Path).Str("target", full).Msg("failed to write rendition")
		return
	}
	if s.onRender != nil {
		s.onRender(full)
	}
	zlog.Logger.Info().Str("target", full).Msg("rendition complete")
}
