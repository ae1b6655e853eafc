package playmusic

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ExplicitType is the service's explicit-content marker on a track.
type ExplicitType int

const (
	// ExplicitTypeUnset is used when the record carries no marker
	ExplicitTypeUnset ExplicitType = 0
	// ExplicitTypeExplicit marks explicit content
	ExplicitTypeExplicit ExplicitType = 1
	// ExplicitTypeClean marks content without explicit lyrics
	ExplicitTypeClean ExplicitType = 2
	// ExplicitTypeEdited marks the edited version of an explicit track
	ExplicitTypeEdited ExplicitType = 3
)

// UnmarshalJSON accepts both the quoted ("1") and bare (1) forms the API uses.
func (e *ExplicitType) UnmarshalJSON(data []byte) error {
	n, err := parseNumber(data)
	if err != nil {
		return err
	}
	*e = ExplicitType(n)
	return nil
}

// Millis is a duration in milliseconds. The API sends it quoted, but bare numbers are accepted too.
type Millis int64

func (m *Millis) UnmarshalJSON(data []byte) error {
	n, err := parseNumber(data)
	if err != nil {
		return err
	}
	*m = Millis(n)
	return nil
}

// parseNumber reads an integer sent either as a JSON number or as a string. Null and "" read as zero.
func parseNumber(data []byte) (int64, error) {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

// ArtRef references a piece of artwork hosted by the service.
type ArtRef struct {
	URL string `json:"url"`
}

// Track is a catalog track as returned by fetchtrack, fetchalbum and plentryfeed.
type Track struct {
	Kind           string       `json:"kind"`
	StoreID        string       `json:"storeId"`
	Nid            string       `json:"nid,omitempty"`
	Title          string       `json:"title"`
	Artist         string       `json:"artist"`
	Composer       string       `json:"composer"`
	Album          string       `json:"album"`
	AlbumArtist    string       `json:"albumArtist"`
	Year           int          `json:"year"`
	TrackNumber    int          `json:"trackNumber"`
	DiscNumber     int          `json:"discNumber"`
	DurationMillis Millis       `json:"durationMillis"`
	Genre          string       `json:"genre"`
	AlbumID        string       `json:"albumId"`
	ArtistIDs      []string     `json:"artistId"`
	AlbumArtRefs   []ArtRef     `json:"albumArtRef"`
	ExplicitType   ExplicitType `json:"explicitType"`
}

// Album is a catalog album as returned by fetchalbum.
type Album struct {
	Kind        string   `json:"kind"`
	AlbumID     string   `json:"albumId"`
	Name        string   `json:"name"`
	Artist      string   `json:"artist"`
	AlbumArtist string   `json:"albumArtist"`
	AlbumArtRef string   `json:"albumArtRef"`
	ArtistIDs   []string `json:"artistId"`
	Year        int      `json:"year"`
	Description string   `json:"description,omitempty"`
	Tracks      []Track  `json:"tracks,omitempty"`
}

// Playlist is one of the user's playlists as returned by playlistfeed.
type Playlist struct {
	Kind       string `json:"kind"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	ShareToken string `json:"shareToken"`
	OwnerName  string `json:"ownerName"`
	Deleted    bool   `json:"deleted"`
}

// PlaylistEntry places a track in a playlist. Track is only embedded for store tracks.
type PlaylistEntry struct {
	Kind             string `json:"kind"`
	ID               string `json:"id"`
	PlaylistID       string `json:"playlistId"`
	TrackID          string `json:"trackId"`
	AbsolutePosition string `json:"absolutePosition"`
	Source           string `json:"source"`
	Deleted          bool   `json:"deleted"`
	Track            *Track `json:"track,omitempty"`
}

// feedResponse is the paged envelope shared by the feed endpoints.
type feedResponse[T any] struct {
	Kind          string `json:"kind"`
	NextPageToken string `json:"nextPageToken"`
	Data          struct {
		Items []T `json:"items"`
	} `json:"data"`
}

// feedRequest is the body posted to the feed endpoints.
type feedRequest struct {
	MaxResults int    `json:"max-results,omitempty"`
	StartToken string `json:"start-token,omitempty"`
}

var (
	_ json.Unmarshaler = (*ExplicitType)(nil)
	_ json.Unmarshaler = (*Millis)(nil)
)
