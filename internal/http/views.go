package http

import (
	"strconv"

	"playmusic/internal/core"
	"playmusic/pkg/musiclink"
)

type errorView struct {
	Error string `json:"error"`
}

type resolveView struct {
	ID   string              `json:"id"`
	Type musiclink.MediaType `json:"type"`
	URL  string              `json:"url"`
}

func newResolveView(result *musiclink.ParseResult) resolveView {
	view := resolveView{ID: result.ID, Type: result.Type}
	if result.OriginalURL != nil {
		view.URL = result.OriginalURL.String()
	}
	return view
}

type resolveListView struct {
	Links   int           `json:"links"`
	Results []resolveView `json:"results"`
}

type artistView struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type trackView struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Artist         artistView `json:"artist"`
	AlbumID        string     `json:"albumId,omitempty"`
	AlbumTitle     string     `json:"albumTitle,omitempty"`
	DiscNumber     int        `json:"discNumber"`
	TrackNumber    int        `json:"trackNumber"`
	Year           int        `json:"year,omitempty"`
	Genre          string     `json:"genre,omitempty"`
	Composer       string     `json:"composer,omitempty"`
	DurationMillis int64      `json:"durationMillis"`
	Explicit       bool       `json:"explicit"`
	IsDownloadable bool       `json:"isDownloadable"`
}

func newTrackView(t *core.Track) trackView {
	view := trackView{
		ID:             t.ID,
		Title:          t.Title,
		Artist:         artistView(t.Artist),
		DiscNumber:     t.DiscNumber,
		TrackNumber:    t.TrackNumber,
		Year:           t.Year,
		Genre:          t.Genre,
		Composer:       t.Composer,
		DurationMillis: t.Duration.Milliseconds(),
		IsDownloadable: t.IsDownloadable,
	}
	if t.Album != nil {
		view.AlbumID = t.Album.ID
		view.AlbumTitle = t.Album.Title
	}
	if entry, ok := t.Metadata(core.ExplicitMetadataName); ok {
		view.Explicit, _ = strconv.ParseBool(entry.Value)
	}
	return view
}

func newTrackViews(tracks []*core.Track) []trackView {
	views := make([]trackView, 0, len(tracks))
	for _, t := range tracks {
		views = append(views, newTrackView(t))
	}
	return views
}

type albumView struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Artist   artistView  `json:"artist"`
	Year     int         `json:"year,omitempty"`
	HasCover bool        `json:"hasCover"`
	Tracks   []trackView `json:"tracks"`
}

func newAlbumView(a *core.Album) albumView {
	return albumView{
		ID:       a.ID,
		Title:    a.Title,
		Artist:   artistView(a.Artist),
		Year:     a.Year,
		HasCover: a.Cover != nil,
		Tracks:   newTrackViews(a.Tracks),
	}
}

type playlistView struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Tracks []trackView `json:"tracks"`
}

func newPlaylistView(p *core.Playlist) playlistView {
	return playlistView{
		ID:     p.ID,
		Title:  p.Title,
		Tracks: newTrackViews(p.Tracks),
	}
}

type trackFileView struct {
	TrackID     string `json:"trackId"`
	DownloadURL string `json:"downloadUrl"`
	MimeType    string `json:"mimeType"`
	Extension   string `json:"extension"`
	BitRate     int    `json:"bitRate"`
}

func newTrackFileView(f *core.TrackFile) trackFileView {
	view := trackFileView{
		DownloadURL: f.DownloadURL,
		MimeType:    f.FileType.String(),
		Extension:   f.FileType.Extension(),
		BitRate:     f.BitRate,
	}
	if f.Track != nil {
		view.TrackID = f.Track.ID
	}
	return view
}
