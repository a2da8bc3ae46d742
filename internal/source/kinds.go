package source

import (
	"fmt"
	"strings"

	"github.com/quillcms/renditions/internal/geometry"
	"github.com/quillcms/renditions/internal/model"
)

// Renderer is the subset of the rendition service the source kinds need.
type Renderer interface {
	GetRendition(path string, spec model.RenditionSpec, outScale int) (url string, size geometry.Size, err error)
}

// ImgAttrs are the attributes of an <img> tag for a source, hidpi-aware.
type ImgAttrs struct {
	Src    string
	SrcSet string
	Width  int
	Height int
}

// Image is the capability interface shared by all source kinds. Kinds that
// cannot produce renditions (remote URLs, static assets) resolve to their
// backing URL for every spec.
type Image interface {
	// Rendition returns the URL and size of the requested variant.
	Rendition(spec model.RenditionSpec, outScale int) (string, geometry.Size, error)
	// ImgAttrs builds src/srcset/width/height for an <img> tag.
	ImgAttrs(spec model.RenditionSpec) (ImgAttrs, error)
	// CSSBackground builds hidpi-capable background-image properties.
	CSSBackground(spec model.RenditionSpec) (string, error)
}

// Open classifies a path into one of the closed source kinds:
// http(s) URLs are remote, "@"-prefixed paths are static assets, anything
// that resolves in the registry is local, anything else is missing.
func Open(path string, reg *Registry, r Renderer, staticURL func(string) string) Image {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return RemoteImage{URL: path}
	}
	if strings.HasPrefix(path, "@") {
		return StaticAsset{URL: staticURL(strings.TrimPrefix(path, "@"))}
	}
	if _, err := reg.Lookup(path); err != nil {
		return MissingImage{Path: path}
	}
	return &LocalImage{Path: path, renderer: r}
}

// LocalImage is a file under local content; the only kind that produces
// renditions.
type LocalImage struct {
	Path     string
	renderer Renderer
}

func (l *LocalImage) Rendition(spec model.RenditionSpec, outScale int) (string, geometry.Size, error) {
	return l.renderer.GetRendition(l.Path, spec, outScale)
}

// renditions fetches the 1x and 2x variants used by hidpi attributes.
func (l *LocalImage) renditions(spec model.RenditionSpec) (url1x, url2x string, size geometry.Size, err error) {
	url1x, size, err = l.renderer.GetRendition(l.Path, spec, 1)
	if err != nil {
		return "", "", geometry.Size{}, err
	}
	url2x, _, err = l.renderer.GetRendition(l.Path, spec, 2)
	if err != nil {
		return "", "", geometry.Size{}, err
	}
	return url1x, url2x, size, nil
}

func (l *LocalImage) ImgAttrs(spec model.RenditionSpec) (ImgAttrs, error) {
	url1x, url2x, size, err := l.renditions(spec)
	if err != nil {
		return ImgAttrs{}, err
	}
	attrs := ImgAttrs{Src: url1x, Width: size.W, Height: size.H}
	if url1x != url2x {
		attrs.SrcSet = fmt.Sprintf("%s 1x, %s 2x", url1x, url2x)
	}
	return attrs, nil
}

func (l *LocalImage) CSSBackground(spec model.RenditionSpec) (string, error) {
	url1x, url2x, _, err := l.renditions(spec)
	if err != nil {
		return "", err
	}
	css := fmt.Sprintf("background-image: url(%q);", url1x)
	if url1x != url2x {
		set := fmt.Sprintf("image-set(url(%q) 1x, url(%q) 2x)", url1x, url2x)
		css += fmt.Sprintf("background-image: %s;background-image: -webkit-%s;", set, set)
	}
	return css, nil
}

// RemoteImage points at an external URL; it is passed through untouched.
type RemoteImage struct {
	URL string
}

func (r RemoteImage) Rendition(model.RenditionSpec, int) (string, geometry.Size, error) {
	return r.URL, geometry.Size{}, nil
}

func (r RemoteImage) ImgAttrs(model.RenditionSpec) (ImgAttrs, error) {
	return ImgAttrs{Src: r.URL}, nil
}

func (r RemoteImage) CSSBackground(model.RenditionSpec) (string, error) {
	return fmt.Sprintf("background-image: url(%q);", r.URL), nil
}

// StaticAsset is a non-image (or pre-sized) static file served as-is.
type StaticAsset struct {
	URL string
}

func (s StaticAsset) Rendition(model.RenditionSpec, int) (string, geometry.Size, error) {
	return s.URL, geometry.Size{}, nil
}

func (s StaticAsset) ImgAttrs(model.RenditionSpec) (ImgAttrs, error) {
	return ImgAttrs{Src: s.URL}, nil
}

func (s StaticAsset) CSSBackground(model.RenditionSpec) (string, error) {
	return fmt.Sprintf("background-image: url(%q);", s.URL), nil
}

// MissingImage reports a typed not-found error for every operation so the
// presentation layer can render an inline placeholder.
type MissingImage struct {
	Path string
}

func (m MissingImage) Rendition(model.RenditionSpec, int) (string, geometry.Size, error) {
	return "", geometry.Size{}, fmt.Errorf("%w: %s", model.ErrSourceNotFound, m.Path)
}

func (m MissingImage) ImgAttrs(model.RenditionSpec) (ImgAttrs, error) {
	return ImgAttrs{}, fmt.Errorf("%w: %s", model.ErrSourceNotFound, m.Path)
}

func (m MissingImage) CSSBackground(model.RenditionSpec) (string, error) {
	return fmt.Sprintf("/* not found: %s */", m.Path), nil
}
