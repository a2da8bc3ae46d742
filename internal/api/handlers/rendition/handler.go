package rendition

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/quillcms/renditions/internal/api/respond"
	"github.com/quillcms/renditions/internal/placeholder"
)

// service defines the rendition operations the async endpoint needs.
type service interface {
	StaticFileURL(name string) (string, bool)
	RenderPending(tok string) (url string, pending bool, err error)
}

// Handler serves the asynchronous rendition delivery endpoint.
type Handler struct {
	service service

	// asyncPath is this endpoint's own mount point, used to build the
	// redirect-to-self polling URLs.
	asyncPath    string
	retryCeiling int
	pollDelay    time.Duration
}

// NewHandler creates a Handler. retryCeiling bounds how many times a client
// is redirected back before it gets a placeholder; pollDelay is the fixed
// server-side pause before each such redirect (deliberately simple
// backpressure).
func NewHandler(s service, asyncPath string, retryCeiling int, pollDelay time.Duration) *Handler {
	return &Handler{service: s, asyncPath: asyncPath, retryCeiling: retryCeiling, pollDelay: pollDelay}
}

// Async handles one poll for a pending rendition. The wildcard parameter is
// either a signed pending token or, for pre-existing static files, a
// cache-relative filename, which may contain slashes.
func (h *Handler) Async(c *ginext.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	// Plain static files short-circuit straight to the asset.
	if url, ok := h.service.StaticFileURL(name); ok {
		respond.Redirect(c, url)
		return
	}

	url, pending, err := h.service.RenderPending(name)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("async rendition request rejected")
		respond.Fail(c, err)
		return
	}
	if !pending {
		respond.Redirect(c, url)
		return
	}

	retryCount, _ := strconv.Atoi(c.Query("retry_count"))
	if retryCount < h.retryCeiling {
		// Pause briefly so impatient clients back off, then hand the
		// poll back with a bumped counter and a cache-busting value.
		time.Sleep(h.pollDelay)
		respond.Redirect(c, fmt.Sprintf("%s/%s?retry_count=%d&cb=%s",
			h.asyncPath, name, retryCount+1, uuid.NewString()))
		return
	}

	// Polling budget exhausted: serve a stable placeholder and let the
	// containing page retry instead of the image.
	img, err := placeholder.Generate(name)
	if err != nil {
		respond.Fail(c, err)
		return
	}
	c.Header("Refresh", "5")
	respond.PNG(c, http.StatusOK, img)
}
