package playmusic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"playmusic/internal/core"
)

// Adapter converts catalog records into the core model. It performs no I/O;
// pictures it creates fetch their bytes only when asked.
type Adapter struct {
	images *ImageFetcher
}

// NewAdapter creates an adapter whose pictures download through images.
func NewAdapter(images *ImageFetcher) *Adapter {
	if images == nil {
		images = NewImageFetcher(nil)
	}
	return &Adapter{images: images}
}

// ArtistFromTrack returns the track's primary artist.
func (a *Adapter) ArtistFromTrack(t *Track) (core.Artist, error) {
	if t == nil {
		return core.Artist{}, fmt.Errorf("%w: nil track", core.ErrMalformedRecord)
	}
	if len(t.ArtistIDs) == 0 {
		return core.Artist{}, fmt.Errorf("%w: track %q has no artist id", core.ErrMalformedRecord, t.StoreID)
	}

	return core.Artist{
		ID:   t.ArtistIDs[0],
		Name: t.Artist,
	}, nil
}

// AlbumArtistFromTrack returns the album artist named on a track. Tracks carry no
// album-artist id, so the artist has none.
func (a *Adapter) AlbumArtistFromTrack(t *Track) core.Artist {
	return core.Artist{Name: t.AlbumArtist}
}

// ArtistFromAlbum returns the album's artist.
func (a *Adapter) ArtistFromAlbum(al *Album) (core.Artist, error) {
	if al == nil {
		return core.Artist{}, fmt.Errorf("%w: nil album", core.ErrMalformedRecord)
	}
	if len(al.ArtistIDs) == 0 {
		return core.Artist{}, fmt.Errorf("%w: album %q has no artist id", core.ErrMalformedRecord, al.AlbumID)
	}

	return core.Artist{
		ID:   al.ArtistIDs[0],
		Name: al.AlbumArtist,
	}, nil
}

// EmbeddedAlbumFromTrack builds the placeholder album carried by a track fetched on its own.
// The placeholder's track list is empty; the track is not a member of it.
func (a *Adapter) EmbeddedAlbumFromTrack(t *Track) *core.Album {
	album := &core.Album{
		ID:     t.AlbumID,
		Title:  t.Album,
		Artist: a.AlbumArtistFromTrack(t),
		Tracks: []*core.Track{},
	}
	if len(t.AlbumArtRefs) > 0 && t.AlbumArtRefs[0].URL != "" {
		album.Cover = NewPicture(t.AlbumArtRefs[0].URL, a.images)
	}
	return album
}

// TrackFromRemote converts a catalog track. The result points at an embedded album;
// AlbumFromRemote replaces it when the track is part of a fetched album.
func (a *Adapter) TrackFromRemote(t *Track) (*core.Track, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil track", core.ErrMalformedRecord)
	}
	if t.StoreID == "" {
		return nil, fmt.Errorf("%w: track %q has no store id", core.ErrMalformedRecord, t.Title)
	}

	artist, err := a.ArtistFromTrack(t)
	if err != nil {
		return nil, err
	}

	return &core.Track{
		ID:          t.StoreID,
		Title:       t.Title,
		Artist:      artist,
		Album:       a.EmbeddedAlbumFromTrack(t),
		DiscNumber:  t.DiscNumber,
		TrackNumber: t.TrackNumber,
		Year:        t.Year,
		Genre:       t.Genre,
		Composer:    t.Composer,
		Duration:    time.Duration(t.DurationMillis) * time.Millisecond,
		// The service refuses withheld tracks outright, so anything it returns can be downloaded.
		IsDownloadable: true,
		CustomMetadata: []core.MetadataEntry{
			{
				Name:       core.ExplicitMetadataName,
				Value:      strconv.FormatBool(t.ExplicitType == ExplicitTypeExplicit),
				IsFlag:     true,
				CanDisplay: true,
			},
		},
	}, nil
}

// AlbumFromRemote converts a catalog album and its embedded tracks, in order.
// Every track's Album points back at the returned album.
func (a *Adapter) AlbumFromRemote(al *Album) (*core.Album, error) {
	if al == nil {
		return nil, fmt.Errorf("%w: nil album", core.ErrMalformedRecord)
	}
	if al.AlbumID == "" {
		return nil, fmt.Errorf("%w: album %q has no id", core.ErrMalformedRecord, al.Name)
	}

	artist, err := a.ArtistFromAlbum(al)
	if err != nil {
		return nil, err
	}

	album := &core.Album{
		ID:     al.AlbumID,
		Title:  al.Name,
		Artist: artist,
		Year:   al.Year,
		Tracks: make([]*core.Track, 0, len(al.Tracks)),
	}
	if al.AlbumArtRef != "" {
		album.Cover = NewPicture(al.AlbumArtRef, a.images)
	}

	for i := range al.Tracks {
		track, err := a.TrackFromRemote(&al.Tracks[i])
		if err != nil {
			return nil, fmt.Errorf("album %q track %d: %w", al.AlbumID, i, err)
		}
		track.Album = album
		album.Tracks = append(album.Tracks, track)
	}

	return album, nil
}

// PlaylistFromRemote converts a playlist and its entries. Deleted entries and entries
// without an embedded track are skipped; the rest are ordered by playlist position.
func (a *Adapter) PlaylistFromRemote(p *Playlist, entries []PlaylistEntry) (*core.Playlist, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil playlist", core.ErrMalformedRecord)
	}

	ordered := make([]PlaylistEntry, 0, len(entries))
	for i := range entries {
		if entries[i].Deleted || entries[i].Track == nil {
			continue
		}
		ordered = append(ordered, entries[i])
	}
	sortEntries(ordered)

	playlist := &core.Playlist{
		ID:     p.ID,
		Title:  p.Name,
		Tracks: make([]*core.Track, 0, len(ordered)),
	}
	for i := range ordered {
		track, err := a.TrackFromRemote(ordered[i].Track)
		if err != nil {
			return nil, fmt.Errorf("playlist %q entry %q: %w", p.ID, ordered[i].ID, err)
		}
		playlist.Tracks = append(playlist.Tracks, track)
	}

	return playlist, nil
}

// sortEntries orders entries by absolute position. Positions are zero-padded
// decimal strings and are compared digit-wise without parsing.
func sortEntries(entries []PlaylistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi := strings.TrimLeft(entries[i].AbsolutePosition, "0")
		pj := strings.TrimLeft(entries[j].AbsolutePosition, "0")
		if len(pi) != len(pj) {
			return len(pi) < len(pj)
		}
		return pi < pj
	})
}
