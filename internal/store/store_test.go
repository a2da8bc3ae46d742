package store

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillcms/renditions/internal/model"
	"github.com/quillcms/renditions/internal/pipeline"
	"github.com/quillcms/renditions/internal/source"
)

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()

	rec := &source.Record{
		Path:        "content/photo.jpg",
		Width:       100,
		Height:      100,
		Fingerprint: "0123456789abcdef0123456789abcdef",
	}
	p, err := pipeline.Build(rec, model.RenditionSpec{Width: 50}, 1, "lanczos")
	require.NoError(t, err)
	return p
}

func TestStore_RelPath(t *testing.T) {
	s := New(t.TempDir(), "_img")
	p := testPipeline(t)

	require.Equal(t, "photo_6789abcdef_50x50.jpg", p.Basename())
	require.Equal(t, filepath.Join("_img", "01", "2345", p.Basename()), s.RelPath(p))
}

func TestStore_Resolve(t *testing.T) {
	root := t.TempDir()
	s := New(root, "_img")
	p := testPipeline(t)

	rel, full, exists := s.Resolve(p)
	require.False(t, exists)
	require.Equal(t, filepath.Join(root, rel), full)

	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte("rendition"), 0o644))

	// Age the file, then confirm a hit refreshes its mtime.
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(full, stale, stale))

	_, _, exists = s.Resolve(p)
	require.True(t, exists)

	info, err := os.Stat(full)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)
}

func TestStore_WriteAtomic(t *testing.T) {
	root := t.TempDir()
	s := New(root, "_img")
	full := filepath.Join(root, "_img", "01", "2345", "out.jpg")

	err := s.WriteAtomic(full, func(w io.Writer) error {
		_, err := w.Write([]byte("rendition bytes"))
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(full)
	require.NoError(t, err)
	require.Equal(t, "rendition bytes", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(full))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestStore_WriteAtomic_WriterError(t *testing.T) {
	root := t.TempDir()
	s := New(root, "_img")
	full := filepath.Join(root, "_img", "01", "2345", "out.jpg")

	err := s.WriteAtomic(full, func(io.Writer) error {
		return io.ErrClosedPipe
	})
	require.Error(t, err)

	_, err = os.Stat(full)
	require.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Dir(full))
	require.NoError(t, err)
	require.Empty(t, entries)
}
