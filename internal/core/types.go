package core

import (
	"context"
	"net/url"
	"time"

	"playmusic/pkg/musiclink"
)

// MediaFileType identifies the format of a downloadable file.
type MediaFileType int

const (
	// FileTypeUnknown is used when the format is not known ahead of download
	FileTypeUnknown MediaFileType = iota
	// FileTypeJPEG is a JPEG image
	FileTypeJPEG
	// FileTypeMP3 is an MPEG-1 Layer 3 audio stream
	FileTypeMP3
)

func (t MediaFileType) String() string {
	switch t {
	case FileTypeJPEG:
		return "image/jpeg"
	case FileTypeMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the conventional file extension for the type, including the dot.
func (t MediaFileType) Extension() string {
	switch t {
	case FileTypeJPEG:
		return ".jpg"
	case FileTypeMP3:
		return ".mp3"
	default:
		return ""
	}
}

// UnknownBitRate marks a TrackFile whose bit rate is not reported by the service
const UnknownBitRate = -1

// ExplicitMetadataName is the custom metadata entry carrying the explicit-content flag
const ExplicitMetadataName = "Explicit"

type Artist struct {
	ID   string // Empty when the source has no stable artist identifier
	Name string
}

// MetadataEntry is a service-specific tag attached to a track.
type MetadataEntry struct {
	Name       string
	Value      string
	IsFlag     bool
	CanDisplay bool
}

type Track struct {
	ID             string
	Title          string
	Artist         Artist
	Album          *Album // Non-owning; the album may be an embedded placeholder
	DiscNumber     int
	TrackNumber    int
	Year           int
	Genre          string
	Composer       string
	Duration       time.Duration
	IsDownloadable bool
	CustomMetadata []MetadataEntry
}

// Metadata returns the custom metadata entry with the given name.
func (t *Track) Metadata(name string) (MetadataEntry, bool) {
	for _, entry := range t.CustomMetadata {
		if entry.Name == name {
			return entry, true
		}
	}
	return MetadataEntry{}, false
}

type Album struct {
	ID     string
	Title  string
	Artist Artist
	Year   int
	Cover  Picture // Nil when the service has no artwork for the album
	Tracks []*Track
}

type Playlist struct {
	ID     string
	Title  string
	Tracks []*Track
}

// Picture is a lazily fetched piece of cover art.
type Picture interface {
	FileType() MediaFileType
	// Largest fetches the full-resolution image.
	Largest(ctx context.Context) ([]byte, error)
	// Thumbnail fetches a reduced image, or fails with ErrThumbnailUnsupported.
	Thumbnail(ctx context.Context) ([]byte, error)
	ThumbnailAvailable() bool
}

// TrackFile describes where a track's audio can be downloaded from.
type TrackFile struct {
	Track       *Track
	DownloadURL string
	FileType    MediaFileType
	BitRate     int
}

type PluginInfo struct {
	Name        string
	Description string
	Author      string
	Website     string
}

type AccountInfo struct {
	DisplayID   string
	DisplayName string
}

// CatalogService is what the host application needs from a music source.
type CatalogService interface {
	Info() PluginInfo
	ParseURL(u *url.URL) *musiclink.ParseResult
	GetTrack(ctx context.Context, trackID string) (*Track, error)
	GetAlbum(ctx context.Context, albumID string, withTracks bool) (*Album, error)
	GetPlaylist(ctx context.Context, playlistID string) (*Playlist, error)
	GetDownloadableTrack(ctx context.Context, track *Track) (*TrackFile, error)
}

// MetricsRecorder receives operational counters from the catalog service.
type MetricsRecorder interface {
	RecordResolve(mediaType string)
	RecordRemoteCall(operation, status string, duration time.Duration)
	RecordAdaptError(entity string)
	RecordCacheHit(kind string)
	RecordCacheMiss(kind string)
}

// NopMetrics discards everything it is given.
type NopMetrics struct{}

func (NopMetrics) RecordResolve(string)                           {}
func (NopMetrics) RecordRemoteCall(string, string, time.Duration) {}
func (NopMetrics) RecordAdaptError(string)                        {}
func (NopMetrics) RecordCacheHit(string)                          {}
func (NopMetrics) RecordCacheMiss(string)                         {}

// MissingStore remembers ids the catalog reported as not found.
type MissingStore interface {
	Has(id string) bool
	Add(id string)
	Size() int
	Clear()
}

// CacheStats reports how much the catalog service holds in memory.
type CacheStats struct {
	Tracks  int
	Albums  int
	Missing int
}
