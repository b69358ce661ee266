// Package media turns CMS media records into the URLs the front end
// renders.
package media

import (
	"strings"

	"github.com/nhle/malharro-cms/internal/model"
)

// Kind is the rendering category of a media file.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Resolved is a media record ready for display.
type Resolved struct {
	// PreviewURL is shown in lists and thumbnails.
	PreviewURL string

	// FullURL is opened in the detail view.
	FullURL string

	Kind Kind
	MIME string
}

// Resolver builds absolute media URLs against the CMS origin.
type Resolver struct {
	origin      string
	placeholder string
}

// NewResolver returns a Resolver. placeholder is used as is for missing
// media; it names a front-end asset, not a CMS file.
func NewResolver(origin, placeholder string) *Resolver {
	return &Resolver{
		origin:      strings.TrimRight(origin, "/"),
		placeholder: placeholder,
	}
}

// Resolve maps a media record to its preview and full URLs. A nil
// record or one without a URL resolves to the placeholder image. Files
// that are not videos render as images.
func (r *Resolver) Resolve(m *model.Media) Resolved {
	if m == nil || m.URL == "" {
		return Resolved{PreviewURL: r.placeholder, FullURL: r.placeholder, Kind: KindImage}
	}

	full := r.AbsoluteURL(m.URL)
	out := Resolved{PreviewURL: full, FullURL: full, Kind: KindImage, MIME: m.MIME}
	if strings.HasPrefix(m.MIME, "video/") {
		out.Kind = KindVideo
		if m.PreviewURL != "" {
			out.PreviewURL = r.AbsoluteURL(m.PreviewURL)
		}
	}
	return out
}

// AbsoluteURL returns u unchanged when it already has an http or https
// scheme, and prefixed with the origin otherwise.
func (r *Resolver) AbsoluteURL(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return r.origin + u
}
