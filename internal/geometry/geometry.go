// Package geometry computes rendition output dimensions and source crop
// boxes from a rendition spec. Everything here is pure arithmetic with no
// I/O so the cache key derivation stays deterministic.
package geometry

import (
	"fmt"
	"math"

	"github.com/quillcms/renditions/internal/model"
)

// Size is an output size in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

// Box is a source-space crop box (left, top, right, bottom).
type Box struct {
	Left   int `json:"l"`
	Top    int `json:"t"`
	Right  int `json:"r"`
	Bottom int `json:"b"`
}

// roundHalfUp converts a scaled dimension to pixels. Ties round away from
// zero (2.5 -> 3), matching the rounding the rest of the cache naming
// assumes; dimensions are always positive here.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// atLeast1 floors degenerate results at one pixel instead of erroring, so a
// pathological spec yields a 1x1 rendition rather than a worker failure.
func atLeast1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// Plan computes the target output size and optional source crop box for a
// spec applied to a srcW x srcH image at the given output scale multiplier.
//
// If the spec carries a crop rectangle the working dimensions become the
// rectangle's size and the returned box is offset back into full source
// coordinates. Unknown resize modes fail synchronously.
func Plan(spec model.RenditionSpec, srcW, srcH, outScale int) (Size, *Box, error) {
	mode, err := model.ParseResizeMode(string(spec.Resize))
	if err != nil {
		return Size{}, nil, err
	}

	w, h := srcW, srcH
	if spec.Crop != nil {
		w, h = spec.Crop.W, spec.Crop.H
	}

	var size Size
	var box *Box
	switch mode {
	case model.ResizeFit:
		size = planFit(spec, w, h, outScale)
	case model.ResizeFill:
		size, box = planFill(spec, w, h, outScale)
	case model.ResizeStretch:
		size = planStretch(spec, w, h, outScale)
	default:
		return Size{}, nil, fmt.Errorf("%w: %q", model.ErrUnknownResizeMode, mode)
	}

	box = adjustCropBox(box, spec.Crop)
	return size, box, nil
}

// adjustCropBox reconciles a fill box with the spec's crop rectangle: the
// fill box was computed in crop-relative coordinates, so shift it back; a
// bare crop rectangle converts directly to a box.
func adjustCropBox(box *Box, crop *model.CropRect) *Box {
	if crop == nil {
		return box
	}
	if box != nil {
		return &Box{
			Left:   box.Left + crop.X,
			Top:    box.Top + crop.Y,
			Right:  box.Right + crop.X,
			Bottom: box.Bottom + crop.Y,
		}
	}
	return &Box{Left: crop.X, Top: crop.Y, Right: crop.X + crop.W, Bottom: crop.Y + crop.H}
}

// preScale applies the shared downsample divisor and the minimum-size
// floors. Fit mode scales the counterpart dimension to preserve aspect;
// stretch leaves it alone.
func preScale(spec model.RenditionSpec, w, h float64, preserveAspect bool) (float64, float64) {
	if spec.Scale > 0 {
		w /= spec.Scale
		h /= spec.Scale
	}

	if min := float64(spec.ScaleMinWidth); min > 0 && w < min {
		if preserveAspect {
			h = h * min / w
		}
		w = min
	}
	if min := float64(spec.ScaleMinHeight); min > 0 && h < min {
		if preserveAspect {
			w = w * min / h
		}
		h = min
	}
	return w, h
}

// planFit clamps each bound in turn, scaling the other dimension to match,
// so aspect ratio is always preserved. The result never exceeds the source.
func planFit(spec model.RenditionSpec, inputW, inputH, outScale int) Size {
	w, h := preScale(spec, float64(inputW), float64(inputH), true)

	clamp := func(bound int, dim, other *float64) {
		if bound > 0 && *dim > float64(bound) {
			*other = *other * float64(bound) / *dim
			*dim = float64(bound)
		}
	}
	clamp(spec.Width, &w, &h)
	clamp(spec.Height, &h, &w)
	clamp(spec.MaxWidth, &w, &h)
	clamp(spec.MaxHeight, &h, &w)

	w *= float64(outScale)
	h *= float64(outScale)

	// Never scale to larger than the base rendition.
	outW := roundHalfUp(w)
	outH := roundHalfUp(h)
	if outW > inputW {
		outW = inputW
	}
	if outH > inputH {
		outH = inputH
	}
	return Size{W: atLeast1(outW), H: atLeast1(outH)}
}

// planFill clamps width and height independently, then crops the source to
// the resulting aspect ratio. The crop box is anchored by the spec's fill
// fractions within the unused margin.
func planFill(spec model.RenditionSpec, inputW, inputH, outScale int) (Size, *Box) {
	w, h := float64(inputW), float64(inputH)
	if spec.Scale > 0 {
		w /= spec.Scale
		h /= spec.Scale
	}
	if min := float64(spec.ScaleMinWidth); min > 0 && w < min {
		w = min
	}
	if min := float64(spec.ScaleMinHeight); min > 0 && h < min {
		h = min
	}

	if spec.Width > 0 && w > float64(spec.Width) {
		w = float64(spec.Width)
	}
	if spec.MaxWidth > 0 && w > float64(spec.MaxWidth) {
		w = float64(spec.MaxWidth)
	}
	if spec.Height > 0 && h > float64(spec.Height) {
		h = float64(spec.Height)
	}
	if spec.MaxHeight > 0 && h > float64(spec.MaxHeight) {
		h = float64(spec.MaxHeight)
	}

	w *= float64(outScale)
	h *= float64(outScale)

	// Never scale to larger than the base rendition, but keep the output
	// aspect when shrinking.
	if w > float64(inputW) {
		h = h * float64(inputW) / w
		w = float64(inputW)
	}
	if h > float64(inputH) {
		w = w * float64(inputH) / h
		h = float64(inputH)
	}

	// The crop box matches the output aspect ratio within the source.
	boxW := roundHalfUp(w * float64(inputH) / h)
	if boxW > inputW {
		boxW = inputW
	}
	boxH := roundHalfUp(h * float64(inputW) / w)
	if boxH > inputH {
		boxH = inputH
	}

	anchorX, anchorY := spec.FillAnchor()
	boxX := roundHalfUp(float64(inputW-boxW) * anchorX)
	boxY := roundHalfUp(float64(inputH-boxH) * anchorY)

	size := Size{W: atLeast1(roundHalfUp(w)), H: atLeast1(roundHalfUp(h))}
	box := &Box{Left: boxX, Top: boxY, Right: boxX + boxW, Bottom: boxY + boxH}
	return size, box
}

// planStretch clamps each dimension independently with no aspect
// preservation and no upper bound from the source size.
func planStretch(spec model.RenditionSpec, inputW, inputH, outScale int) Size {
	w, h := preScale(spec, float64(inputW), float64(inputH), false)

	if spec.Width > 0 && w > float64(spec.Width) {
		w = float64(spec.Width)
	}
	if spec.Height > 0 && h > float64(spec.Height) {
		h = float64(spec.Height)
	}
	if spec.MaxWidth > 0 && w > float64(spec.MaxWidth) {
		w = float64(spec.MaxWidth)
	}
	if spec.MaxHeight > 0 && h > float64(spec.MaxHeight) {
		h = float64(spec.MaxHeight)
	}

	w *= float64(outScale)
	h *= float64(outScale)

	return Size{W: atLeast1(roundHalfUp(w)), H: atLeast1(roundHalfUp(h))}
}
