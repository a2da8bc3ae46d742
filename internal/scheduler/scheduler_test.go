package scheduler

import (
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/quillcms/renditions/internal/model"
	"github.com/quillcms/renditions/internal/source"
	"github.com/quillcms/renditions/internal/store"
)

// newTestSource writes a real source image and returns its indexed record.
func newTestSource(t *testing.T, w, h int) *source.Record {
	t.Helper()

	path := filepath.Join(t.TempDir(), "photo.png")
	img := imaging.New(w, h, color.NRGBA{R: 64, G: 128, B: 192, A: 255})
	require.NoError(t, imaging.Save(img, path))

	rec, err := source.NewRegistry().Lookup(path)
	require.NoError(t, err)
	return rec
}

func TestScheduler_Ensure_NotEager(t *testing.T) {
	st := store.New(t.TempDir(), "_img")
	s := New(st, 2, "lanczos")
	defer s.Close()

	rec := newTestSource(t, 100, 50)

	res, err := s.Ensure(rec, model.RenditionSpec{Width: 50}, 1, false)
	require.NoError(t, err)
	require.True(t, res.Pending)
	require.Equal(t, 50, res.Size.W)
	require.Equal(t, 25, res.Size.H)

	// Nothing was rendered.
	_, err = os.Stat(filepath.Join(st.Root, res.RelPath))
	require.True(t, os.IsNotExist(err))
}

func TestScheduler_Ensure_Eager(t *testing.T) {
	st := store.New(t.TempDir(), "_img")
	s := New(st, 2, "lanczos")
	defer s.Close()

	rec := newTestSource(t, 100, 50)

	res, err := s.Ensure(rec, model.RenditionSpec{Width: 50}, 1, true)
	require.NoError(t, err)
	require.True(t, res.Pending)

	full := filepath.Join(st.Root, res.RelPath)
	require.Eventually(t, func() bool {
		_, err := os.Stat(full)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	out, err := imaging.Open(full)
	require.NoError(t, err)
	require.Equal(t, 50, out.Bounds().Dx())
	require.Equal(t, 25, out.Bounds().Dy())

	// Second call is an immediate cache hit.
	res, err = s.Ensure(rec, model.RenditionSpec{Width: 50}, 1, true)
	require.NoError(t, err)
	require.False(t, res.Pending)
}

func TestScheduler_Ensure_DeduplicatesInflight(t *testing.T) {
	st := store.New(t.TempDir(), "_img")
	s := New(st, 4, "lanczos")
	defer s.Close()

	var renders atomic.Int32
	s.onRender = func(string) { renders.Add(1) }

	rec := newTestSource(t, 100, 50)
	spec := model.RenditionSpec{Width: 50}

	errs := make(chan error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Ensure(rec, spec, 1, true)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	res, err := s.Ensure(rec, spec, 1, false)
	require.NoError(t, err)

	full := filepath.Join(st.Root, res.RelPath)
	require.Eventually(t, func() bool {
		_, err := os.Stat(full)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, int32(1), renders.Load())
}

func TestScheduler_Ensure_BadSpec(t *testing.T) {
	st := store.New(t.TempDir(), "_img")
	s := New(st, 1, "lanczos")
	defer s.Close()

	rec := newTestSource(t, 100, 50)

	_, err := s.Ensure(rec, model.RenditionSpec{Resize: "spiral", Width: 50}, 1, false)
	require.ErrorIs(t, err, model.ErrUnknownResizeMode)
}

func TestScheduler_SubmitAndClose(t *testing.T) {
	st := store.New(t.TempDir(), "_img")
	s := New(st, 2, "lanczos")

	done := make(chan struct{})
	s.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("submitted job never ran")
	}
	s.Close()
}
