package router

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/quillcms/renditions/internal/api/handlers/rendition"
	"github.com/quillcms/renditions/internal/middleware"
)

// Setup builds the HTTP surface: the async rendition endpoint, the static
// cache mount, and a health probe.
func Setup(h *rendition.Handler, staticURLPath, staticRoot, asyncPath string) *ginext.Engine {
	r := ginext.New()

	r.Use(middleware.CORSMiddleware())
	r.Use(ginext.Logger())
	r.Use(ginext.Recovery())

	r.Static(staticURLPath, staticRoot)
	// Wildcard, not :name: pre-existing static files arrive as sharded
	// cache-relative paths with slashes in them.
	r.GET(asyncPath+"/*name", h.Async)

	r.GET("/healthz", func(c *ginext.Context) {
		c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
