// Package pipeline converts a (source image, rendition spec) pair into an
// ordered list of named transformation steps plus a deterministic output
// filename. Only labeled steps contribute to the cache key; an unlabeled
// step has no observable effect on the output bytes for caching purposes.
package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/quillcms/renditions/internal/geometry"
	"github.com/quillcms/renditions/internal/model"
	"github.com/quillcms/renditions/internal/source"
)

// Step is one transformation. Steps with an empty label are applied but do
// not participate in cache naming.
type Step struct {
	Label string
	Apply func(image.Image) image.Image
}

// Pipeline is the fully resolved rendering plan for one rendition.
type Pipeline struct {
	Steps []Step

	// labels is the canonical cache-key sequence, seeded with the source
	// slug and fingerprint suffix.
	labels []string

	Format      imaging.Format
	Ext         string
	SaveOpts    []imaging.EncodeOption
	Size        geometry.Size
	Box         *geometry.Box
	Fingerprint string
}

// CacheKey joins the labels of the steps actually applied. Two specs with
// identical effective values always produce the same key.
func (p *Pipeline) CacheKey() string {
	return strings.Join(p.labels, "_")
}

// Basename is the output filename: slug, fingerprint suffix and pipeline
// labels joined with underscores, plus the target format's extension.
func (p *Pipeline) Basename() string {
	return p.CacheKey() + p.Ext
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases a basename and collapses anything non-alphanumeric.
func slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "image"
	}
	return s
}

// ParseFilter maps a filter name to its imaging resample filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch strings.ToLower(name) {
	case "lanczos":
		return imaging.Lanczos, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "linear":
		return imaging.Linear, nil
	case "box":
		return imaging.Box, nil
	case "catmullrom":
		return imaging.CatmullRom, nil
	case "mitchell":
		return imaging.MitchellNetravali, nil
	case "gaussian":
		return imaging.Gaussian, nil
	}
	return imaging.Lanczos, fmt.Errorf("%w: %q", model.ErrUnknownFilter, name)
}

func supportsAlpha(format imaging.Format) bool {
	return format == imaging.PNG || format == imaging.GIF
}

func paletteCapable(format imaging.Format) bool {
	return format == imaging.PNG || format == imaging.GIF
}

func supportsQuality(format imaging.Format) bool {
	return format == imaging.JPEG
}

// outputFormat resolves the target format and extension: the spec's format
// override when present, otherwise the source file's own extension.
func outputFormat(rec *source.Record, spec model.RenditionSpec) (imaging.Format, string, error) {
	name := spec.Format
	if name == "" {
		if i := strings.LastIndex(rec.Path, "."); i >= 0 {
			name = rec.Path[i+1:]
		}
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return 0, "", fmt.Errorf("output format %q: %w", name, err)
	}
	ext := "." + strings.ToLower(name)
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	return format, ext, nil
}

// parseColor resolves a background color value to a concrete color.
func parseColor(v model.ColorValue) color.NRGBA {
	if v.Components != nil {
		c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		comps := v.Components
		if len(comps) >= 3 {
			c.R, c.G, c.B = comps[0], comps[1], comps[2]
		}
		if len(comps) == 4 {
			c.A = comps[3]
		}
		return c
	}

	name := strings.ToLower(v.Name)
	if hex, ok := strings.CutPrefix(name, "#"); ok {
		var r, g, b uint8
		switch len(hex) {
		case 3:
			fmt.Sscanf(hex, "%1x%1x%1x", &r, &g, &b)
			r, g, b = r*17, g*17, b*17
		case 6:
			fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b)
		}
		return color.NRGBA{R: r, G: g, B: b, A: 255}
	}

	switch name {
	case "black":
		return color.NRGBA{A: 255}
	case "gray", "grey":
		return color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	default: // white
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	}
}

// Build assembles the canonical step list for a rendition. Step order is
// fixed regardless of how the caller phrased the spec, which is what makes
// cache keys order-independent.
func Build(rec *source.Record, spec model.RenditionSpec, outScale int, defaultFilter string) (*Pipeline, error) {
	format, ext, err := outputFormat(rec, spec)
	if err != nil {
		return nil, err
	}

	filterName := defaultFilter
	if spec.Filter != "" {
		filterName = spec.Filter
	}
	filter, err := ParseFilter(filterName)
	if err != nil {
		return nil, err
	}

	size, box, err := geometry.Plan(spec, rec.Width, rec.Height, outScale)
	if err != nil {
		return nil, err
	}

	base := rec.Path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}

	p := &Pipeline{
		labels:      []string{slugify(base), rec.FingerprintSuffix()},
		Format:      format,
		Ext:         ext,
		Size:        size,
		Box:         box,
		Fingerprint: rec.Fingerprint,
	}
	addStep := func(label string, apply func(image.Image) image.Image) {
		if label != "" {
			p.labels = append(p.labels, label)
		}
		if apply != nil {
			p.Steps = append(p.Steps, Step{Label: label, Apply: apply})
		}
	}

	// EXIF orientation is normalized at decode time (imaging's
	// AutoOrientation); it is always applied and never labeled.

	// Paletted sources are normalized to full color before any other
	// pixel work. Unlabeled: it does not change what the cache contains.
	if rec.Paletted {
		addStep("", func(im image.Image) image.Image {
			return imaging.Clone(im)
		})
	}

	// Flatten transparency against a background when the output format
	// cannot carry alpha, or when an explicit background is requested.
	if (rec.Transparent && !supportsAlpha(format)) || spec.Background != nil {
		bg := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		label := ""
		if spec.Background != nil {
			bg = parseColor(*spec.Background)
			label = "b" + spec.Background.Label()
		}
		addStep(label, func(im image.Image) image.Image {
			canvas := imaging.New(im.Bounds().Dx(), im.Bounds().Dy(), bg)
			return imaging.Overlay(canvas, im, image.Pt(0, 0), 1.0)
		})
	}

	// Crop and resize, only when they would actually change pixels.
	if box != nil || size.W != rec.Width || size.H != rec.Height {
		label := fmt.Sprintf("%dx%d", size.W, size.H)
		if box != nil {
			label += fmt.Sprintf("-%d-%d-%d-%d", box.Left, box.Top, box.Right, box.Bottom)
		}
		if spec.Filter != "" {
			label += "-" + strings.ToLower(spec.Filter)
		}
		cropBox := box
		addStep(label, func(im image.Image) image.Image {
			if cropBox != nil {
				im = imaging.Crop(im, image.Rect(cropBox.Left, cropBox.Top, cropBox.Right, cropBox.Bottom))
			}
			if b := im.Bounds(); b.Dx() != size.W || b.Dy() != size.H {
				im = imaging.Resize(im, size.W, size.H, filter)
			}
			return im
		})
	}

	// Palette quantization for palette-capable outputs.
	if paletteCapable(format) && (rec.Paletted || format == imaging.GIF || spec.Quantize > 0) {
		colors := spec.Quantize
		label := ""
		if spec.Quantize > 0 {
			label = fmt.Sprintf("p%d", colors)
		} else {
			colors = 256
		}
		if format == imaging.GIF {
			p.SaveOpts = append(p.SaveOpts, imaging.GIFNumColors(colors))
			addStep(label, nil)
		} else {
			addStep(label, func(im image.Image) image.Image {
				return quantize(im, colors)
			})
		}
	}

	// Quality and lossless are mutually exclusive; lossless wins and
	// forces maximum quality where a quality knob exists.
	switch {
	case spec.Lossless:
		if supportsQuality(format) {
			p.SaveOpts = append(p.SaveOpts, imaging.JPEGQuality(100))
		}
		addStep("l", nil)
	case spec.Quality > 0 && supportsQuality(format):
		p.SaveOpts = append(p.SaveOpts, imaging.JPEGQuality(spec.Quality))
		addStep(fmt.Sprintf("q%d", spec.Quality), nil)
	}

	return p, nil
}

// quantize redraws the image onto a bounded uniform palette with
// Floyd-Steinberg dithering.
func quantize(im image.Image, colors int) image.Image {
	if colors < 2 {
		colors = 2
	}
	if colors > len(palette.Plan9) {
		colors = len(palette.Plan9)
	}
	out := image.NewPaletted(im.Bounds(), palette.Plan9[:colors])
	draw.FloydSteinberg.Draw(out, im.Bounds(), im, im.Bounds().Min)
	return out
}
