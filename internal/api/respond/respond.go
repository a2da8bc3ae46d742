package respond

import (
	"errors"
	"net/http"

	"github.com/wb-go/wbf/ginext"

	"github.com/quillcms/renditions/internal/model"
)

// Error represents a standard structure for error responses.
type Error struct {
	Message string `json:"message"`
}

// Redirect sends a 302 to the given location.
func Redirect(c *ginext.Context, location string) {
	c.Redirect(http.StatusFound, location)
}

// PNG sends raw PNG bytes as the response body.
func PNG(c *ginext.Context, status int, data []byte) {
	c.Data(status, "image/png", data)
}

// JSON sends a JSON response with the specified HTTP status code and data.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Fail sends an error JSON response, mapping the subsystem's typed errors
// to HTTP statuses. Unknown errors become 500s.
func Fail(c *ginext.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrSourceNotFound), errors.Is(err, model.ErrBadToken):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrUnknownResizeMode), errors.Is(err, model.ErrUnknownFilter):
		status = http.StatusBadRequest
	}
	JSON(c, status, Error{Message: err.Error()})
}
