package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResizeMode selects how a rendition's target dimensions relate to the
// source dimensions.
type ResizeMode string

const (
	// ResizeFit scales the image down to fit within the requested bounds,
	// preserving aspect ratio. Never upsamples past the source.
	ResizeFit ResizeMode = "fit"
	// ResizeFill produces exactly the requested dimensions by cropping the
	// source to the matching aspect ratio.
	ResizeFill ResizeMode = "fill"
	// ResizeStretch produces exactly the requested dimensions with no
	// regard for aspect ratio. May upsample past the source.
	ResizeStretch ResizeMode = "stretch"
)

// ParseResizeMode validates a resize mode string. The empty string maps to
// ResizeFit, matching the default the rendering layer assumes.
func ParseResizeMode(s string) (ResizeMode, error) {
	switch ResizeMode(s) {
	case "":
		return ResizeFit, nil
	case ResizeFit, ResizeFill, ResizeStretch:
		return ResizeMode(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResizeMode, s)
}

// CropRect is a source-space crop rectangle given as an origin plus size.
type CropRect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ParseCropRect parses the "x,y,w,h" form accepted in template arguments.
func ParseCropRect(s string) (*CropRect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("crop: expected 4 components, got %d", len(parts))
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("crop: %w", err)
		}
		vals[i] = v
	}
	return &CropRect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}

// ColorValue is a background color that may arrive either as a CSS-style
// string ("white", "#fff", "#ffffff") or as a list of channel components
// ([255, 255, 255]). The two forms produce different cache labels, so the
// original representation is preserved.
type ColorValue struct {
	Name       string
	Components []uint8
}

// UnmarshalJSON accepts either a string or an array of numbers.
func (c *ColorValue) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		c.Name = name
		c.Components = nil
		return nil
	}
	var comps []uint8
	if err := json.Unmarshal(data, &comps); err != nil {
		return fmt.Errorf("background: expected string or component list")
	}
	if len(comps) != 3 && len(comps) != 4 {
		return fmt.Errorf("background: expected 3 or 4 components, got %d", len(comps))
	}
	c.Name = ""
	c.Components = comps
	return nil
}

// MarshalJSON emits the same form the value was parsed from. Components go
// through []int so they serialize as a number list rather than base64.
func (c ColorValue) MarshalJSON() ([]byte, error) {
	if c.Components != nil {
		comps := make([]int, len(c.Components))
		for i, v := range c.Components {
			comps[i] = int(v)
		}
		return json.Marshal(comps)
	}
	return json.Marshal(c.Name)
}

// Label returns the cache-key fragment for this color: the bare name for
// string colors, dash-joined channels for component colors.
func (c ColorValue) Label() string {
	if c.Components == nil {
		return c.Name
	}
	parts := make([]string, len(c.Components))
	for i, v := range c.Components {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, "-")
}

// RenditionSpec describes a single requested image variant. Specs are pure
// data; equal specs must produce equal cache keys. The zero value asks for
// the source image unchanged.
type RenditionSpec struct {
	Resize ResizeMode `json:"resize,omitempty"`

	Width     int `json:"width,omitempty"`
	Height    int `json:"height,omitempty"`
	MaxWidth  int `json:"max_width,omitempty"`
	MaxHeight int `json:"max_height,omitempty"`

	// Scale divides the working dimensions before any clamping; the
	// ScaleMin floors then bound how small the divisor may take them.
	Scale          float64 `json:"scale,omitempty"`
	ScaleMinWidth  int     `json:"scale_min_width,omitempty"`
	ScaleMinHeight int     `json:"scale_min_height,omitempty"`

	// Crop restricts all sizing math to a sub-rectangle of the source.
	Crop *CropRect `json:"crop,omitempty"`

	// Fill-mode anchor fractions in [0, 1]; nil means centered (0.5).
	FillCropX *float64 `json:"fill_crop_x,omitempty"`
	FillCropY *float64 `json:"fill_crop_y,omitempty"`

	// Format overrides the output format ("jpg", "png", "gif", ...).
	Format string `json:"format,omitempty"`

	// Background flattens transparency against a solid color.
	Background *ColorValue `json:"background,omitempty"`

	Quality  int  `json:"quality,omitempty"`
	Lossless bool `json:"lossless,omitempty"`

	// Quantize requests a palette of at most this many colors.
	Quantize int `json:"quantize,omitempty"`

	// Filter names the resampling filter ("lanczos", "box", ...). Empty
	// means the configured default.
	Filter string `json:"filter,omitempty"`
}

// FillAnchor returns the fill crop anchor fractions, defaulting to center.
func (s RenditionSpec) FillAnchor() (x, y float64) {
	x, y = 0.5, 0.5
	if s.FillCropX != nil {
		x = *s.FillCropX
	}
	if s.FillCropY != nil {
		y = *s.FillCropY
	}
	return x, y
}
