package musiclink

import (
	"net/url"
	"strings"
)

const (
	// PlayMusicHost is the only host Play Music links are served from.
	PlayMusicHost = "play.google.com"

	// idSuffixToken is a disambiguation suffix some catalog ids carry.
	idSuffixToken = "_cid"

	// deepLinkMinParts is the minimum number of fragment segments in "#/<type>/<id>".
	deepLinkMinParts = 3
	// pathLinkMinParts is the minimum number of path segments in "/music/<kind>/<id>" and "/store/music/<type>".
	pathLinkMinParts = 4
)

// playMusicTypeTokens maps the type token used in deep links and store links to a media type.
// Auto-playlists ("ap") share the id space of user playlists ("pl").
var playMusicTypeTokens = map[string]MediaType{
	"album":  MediaTypeAlbum,
	"artist": MediaTypeArtist,
	"pl":     MediaTypePlaylist,
	"ap":     MediaTypePlaylist,
}

// playMusicIDPrefixes maps the leading character of a catalog id to the entity kind it encodes.
// Share links of the form /music/m/<id> carry no type token, so the id prefix is all there is.
// Unlisted prefixes resolve to MediaTypeUnknown.
var playMusicIDPrefixes = map[byte]MediaType{
	'B': MediaTypeAlbum,
	'A': MediaTypeArtist,
}

// PlayMusicResolver classifies Google Play Music links.
//
// Three link shapes are recognised, tried in this order:
//
//	https://play.google.com/music/listen?...#/<type>/<id>[/...]   (deep link)
//	https://play.google.com/music/m/<id>[?...]                    (share link)
//	https://play.google.com/music/playlist/<id>                   (share link)
//	https://play.google.com/store/music/<type>[/<slug>]?id=<id>   (store link)
//
// The first shape whose structure matches wins, even if it can only report MediaTypeUnknown.
type PlayMusicResolver struct {
	parsers []func(*url.URL) *ParseResult
}

// NewPlayMusicResolver creates a new Play Music link resolver.
func NewPlayMusicResolver() *PlayMusicResolver {
	r := &PlayMusicResolver{}
	r.parsers = []func(*url.URL) *ParseResult{
		r.parseDeepLink,
		r.parseShareLink,
		r.parseStoreLink,
	}
	return r
}

// CanResolve checks if the URL is a Play Music link.
func (r *PlayMusicResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return r.ownsHost(u)
}

// Parse classifies a Play Music link.
func (r *PlayMusicResolver) Parse(u *url.URL) *ParseResult {
	if u == nil || !r.ownsHost(u) {
		return nil
	}

	for _, parse := range r.parsers {
		if result := parse(u); result != nil {
			return result
		}
	}

	return nil
}

func (r *PlayMusicResolver) ownsHost(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), PlayMusicHost)
}

// parseDeepLink handles web player links, e.g.
// https://play.google.com/music/listen?authuser&u=0#/album/Bxrl5ep5hy42lcgslqo2g763fmi/21+Savage/Savage+Mode
func (r *PlayMusicResolver) parseDeepLink(u *url.URL) *ParseResult {
	parts := splitEscaped(u.EscapedFragment())
	if len(parts) < deepLinkMinParts {
		return nil
	}

	id := NormalizeID(parts[2])
	if id == "" {
		return nil
	}

	return newParseResult(u, id, typeFromToken(parts[1]))
}

// parseShareLink handles share links, e.g.
// https://play.google.com/music/m/Bxrl5ep5hy42lcgslqo2g763fmi?t=Savage_Mode_-_21_Savage
// https://play.google.com/music/playlist/AMaBXymt04scFikIqJ1XbwNRMi63xz3flhAlDGtayY4oWb9-Z2PSN6Z-TvjEvoq3Tt0UBolosqL04VBvXE1Ky_ZtSpuXbGWk6A%3D%3D
func (r *PlayMusicResolver) parseShareLink(u *url.URL) *ParseResult {
	parts := splitEscaped(u.EscapedPath())
	if len(parts) < pathLinkMinParts || parts[1] != "music" {
		return nil
	}

	id := NormalizeID(parts[3])
	if id == "" {
		return nil
	}

	switch parts[2] {
	case "m":
		return newParseResult(u, id, typeFromID(id))
	case "playlist":
		return newParseResult(u, id, MediaTypePlaylist)
	default:
		return nil
	}
}

// parseStoreLink handles store links, e.g.
// https://play.google.com/store/music/album/Lil_Uzi_Vert_Luv_Is_Rage_2?id=Bmik43oo2xc3h5pzowdtwkiojue
// https://play.google.com/store/music/album?id=Bmik43oo2xc3h5pzowdtwkiojue
func (r *PlayMusicResolver) parseStoreLink(u *url.URL) *ParseResult {
	parts := splitEscaped(u.EscapedPath())
	if len(parts) < pathLinkMinParts || parts[1] != "store" || parts[2] != "music" {
		return nil
	}

	id := NormalizeID(u.Query().Get("id"))
	if id == "" {
		return nil
	}

	return newParseResult(u, id, typeFromToken(parts[3]))
}

// NormalizeID strips the trailing "_cid" disambiguation token from a catalog id.
// Ids without the token are returned unchanged.
func NormalizeID(id string) string {
	if i := strings.LastIndex(id, idSuffixToken); i >= 0 {
		return id[:i]
	}
	return id
}

func typeFromToken(token string) MediaType {
	if t, ok := playMusicTypeTokens[token]; ok {
		return t
	}
	return MediaTypeUnknown
}

func typeFromID(id string) MediaType {
	if id == "" {
		return MediaTypeUnknown
	}
	if t, ok := playMusicIDPrefixes[id[0]]; ok {
		return t
	}
	return MediaTypeUnknown
}

// splitEscaped splits an escaped path or fragment on "/" and unescapes each segment.
// Segments that fail to unescape are kept verbatim.
func splitEscaped(escaped string) []string {
	parts := strings.Split(escaped, "/")
	for i, part := range parts {
		if unescaped, err := url.PathUnescape(part); err == nil {
			parts[i] = unescaped
		}
	}
	return parts
}

func newParseResult(u *url.URL, id string, mediaType MediaType) *ParseResult {
	original := *u
	return &ParseResult{
		ID:          id,
		Type:        mediaType,
		OriginalURL: &original,
	}
}
