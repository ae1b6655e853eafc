package playmusic

import (
	"context"

	"playmusic/internal/core"
)

// Picture is album artwork hosted by the service. Nothing is downloaded until Largest is called.
type Picture struct {
	url     string
	fetcher *ImageFetcher
}

// NewPicture creates a lazy handle to the artwork at url.
func NewPicture(url string, fetcher *ImageFetcher) *Picture {
	if fetcher == nil {
		fetcher = NewImageFetcher(nil)
	}
	return &Picture{url: url, fetcher: fetcher}
}

// URL returns the artwork location.
func (p *Picture) URL() string {
	return p.url
}

func (p *Picture) FileType() core.MediaFileType {
	return core.FileTypeJPEG
}

// Largest downloads the artwork at the resolution the service serves by default.
func (p *Picture) Largest(ctx context.Context) ([]byte, error) {
	return p.fetcher.Fetch(ctx, p.url)
}

// Thumbnail always fails: the service publishes a single artwork size.
func (p *Picture) Thumbnail(_ context.Context) ([]byte, error) {
	return nil, core.ErrThumbnailUnsupported
}

func (p *Picture) ThumbnailAvailable() bool {
	return false
}

var _ core.Picture = (*Picture)(nil)
