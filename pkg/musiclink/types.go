// Package musiclink classifies music service links into a media type and canonical catalog id.
package musiclink

import (
	"net/url"
)

// MediaType identifies the kind of catalog entity a link points at.
type MediaType int

const (
	// MediaTypeUnknown is reported when a link belongs to a service but its shape does not reveal the entity kind.
	MediaTypeUnknown MediaType = iota
	// MediaTypeAlbum represents an album link.
	MediaTypeAlbum
	// MediaTypeArtist represents an artist link.
	MediaTypeArtist
	// MediaTypePlaylist represents a playlist link (user playlists and auto-playlists alike).
	MediaTypePlaylist
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeAlbum:
		return "album"
	case MediaTypeArtist:
		return "artist"
	case MediaTypePlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// MarshalText renders the media type as its lower-case name.
func (t MediaType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText. Anything else is MediaTypeUnknown.
func (t *MediaType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "album":
		*t = MediaTypeAlbum
	case "artist":
		*t = MediaTypeArtist
	case "playlist":
		*t = MediaTypePlaylist
	default:
		*t = MediaTypeUnknown
	}
	return nil
}

// ParseResult is the outcome of classifying a link.
type ParseResult struct {
	ID          string    // Canonical catalog id.
	Type        MediaType // Entity kind.
	OriginalURL *url.URL  // The link that was classified.
}

// Resolver defines the interface for classifying links of a single music service.
type Resolver interface {
	// Parse classifies u. It returns nil when u is not a link of this service
	// or when none of the service's link shapes match.
	Parse(u *url.URL) *ParseResult

	// CanResolve checks if this resolver owns the given URL's host.
	CanResolve(rawURL string) bool
}
