package model

import "errors"

var (
	// ErrSourceNotFound indicates the referenced source image does not
	// exist on disk. Presentation layers render this inline rather than
	// failing the whole page.
	ErrSourceNotFound = errors.New("source image not found")

	// ErrUnknownResizeMode indicates a resize mode other than
	// fit/fill/stretch. Raised synchronously, never from a render job.
	ErrUnknownResizeMode = errors.New("unknown resize mode")

	// ErrUnknownFilter indicates an unparseable scale-filter name.
	ErrUnknownFilter = errors.New("unknown scale filter")

	// ErrBadToken indicates a pending-rendition token that failed
	// signature verification or decoding.
	ErrBadToken = errors.New("invalid rendition token")

	// ErrNotReady is returned by the legacy synchronous wait when the
	// rendition did not appear within its bounded retry budget.
	ErrNotReady = errors.New("rendition not ready")
)
