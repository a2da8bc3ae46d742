package rendition

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"

	"github.com/quillcms/renditions/internal/model"
)

type mockService struct {
	staticFileURL func(name string) (string, bool)
	renderPending func(tok string) (string, bool, error)
}

func (m *mockService) StaticFileURL(name string) (string, bool) {
	return m.staticFileURL(name)
}

func (m *mockService) RenderPending(tok string) (string, bool, error) {
	return m.renderPending(tok)
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/_async/*name", func(c *gin.Context) {
		h.Async((*ginext.Context)(c))
	})
	return r
}

func TestAsync_StaticShortCircuit(t *testing.T) {
	svc := &mockService{
		staticFileURL: func(name string) (string, bool) {
			return "/static/_img/01/2345/" + name, true
		},
	}
	r := newTestRouter(NewHandler(svc, "/_async", 10, 0))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_async/photo_6789abcdef_50x50.jpg", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/static/_img/01/2345/photo_6789abcdef_50x50.jpg", w.Header().Get("Location"))
}

func TestAsync_StaticShortCircuit_NestedName(t *testing.T) {
	var got string
	svc := &mockService{
		staticFileURL: func(name string) (string, bool) {
			got = name
			return "/static/" + name, true
		},
	}
	r := newTestRouter(NewHandler(svc, "/_async", 10, 0))

	// Sharded cache-relative filenames contain slashes and must still
	// reach the short-circuit.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_async/_img/01/2345/photo_6789abcdef_50x50.jpg", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "_img/01/2345/photo_6789abcdef_50x50.jpg", got)
	require.Equal(t, "/static/_img/01/2345/photo_6789abcdef_50x50.jpg", w.Header().Get("Location"))
}

func TestAsync_ReadyRedirect(t *testing.T) {
	svc := &mockService{
		staticFileURL: func(string) (string, bool) { return "", false },
		renderPending: func(string) (string, bool, error) {
			return "/static/_img/01/2345/photo_6789abcdef_50x50.jpg", false, nil
		},
	}
	r := newTestRouter(NewHandler(svc, "/_async", 10, 0))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_async/sometoken", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/static/_img/01/2345/photo_6789abcdef_50x50.jpg", w.Header().Get("Location"))
}

func TestAsync_PendingRedirectsToSelf(t *testing.T) {
	svc := &mockService{
		staticFileURL: func(string) (string, bool) { return "", false },
		renderPending: func(string) (string, bool, error) { return "", true, nil },
	}
	r := newTestRouter(NewHandler(svc, "/_async", 10, time.Millisecond))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_async/sometoken?retry_count=3", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	require.Contains(t, loc, "/_async/sometoken?retry_count=4&cb=")
}

func TestAsync_CeilingServesPlaceholder(t *testing.T) {
	svc := &mockService{
		staticFileURL: func(string) (string, bool) { return "", false },
		renderPending: func(string) (string, bool, error) { return "", true, nil },
	}
	r := newTestRouter(NewHandler(svc, "/_async", 10, time.Millisecond))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_async/sometoken?retry_count=10", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, "5", w.Header().Get("Refresh"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 32, img.Bounds().Dx())
}

func TestAsync_BadToken(t *testing.T) {
	svc := &mockService{
		staticFileURL: func(string) (string, bool) { return "", false },
		renderPending: func(string) (string, bool, error) { return "", false, model.ErrBadToken },
	}
	r := newTestRouter(NewHandler(svc, "/_async", 10, 0))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/_async/garbage", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
