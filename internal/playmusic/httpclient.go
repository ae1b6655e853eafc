package playmusic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"playmusic/internal/core"
)

const (
	// commonUserAgent is the user agent string used for all HTTP requests.
	commonUserAgent = "Mozilla/5.0 (Linux; Android 9) playmusic/1.0"
	// defaultHTTPTimeout is the default timeout for artwork requests.
	defaultHTTPTimeout = 20 * time.Second
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// maxImageSize limits the amount of image data read for one picture.
	maxImageSize = 16 << 20
)

var (
	// ErrTooManyRedirects is returned when too many redirects are encountered.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrImageTooLarge is returned when artwork exceeds maxImageSize.
	ErrImageTooLarge = errors.New("image exceeds size limit")
)

// newHTTPClient creates a new HTTP client with standard settings and redirect validation.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: defaultHTTPTimeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// ImageFetcher downloads artwork bytes.
type ImageFetcher struct {
	client *http.Client
}

// NewImageFetcher creates a fetcher. A nil client selects the default artwork client.
func NewImageFetcher(client *http.Client) *ImageFetcher {
	if client == nil {
		client = newHTTPClient()
	}
	return &ImageFetcher{client: client}
}

// Fetch downloads the image at imageURL.
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", core.ErrResourceNotFound, imageURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: artwork host returned status %d", core.ErrUpstreamUnavailable, resp.StatusCode)
	}

	// Read one byte past the limit so oversized images are detected rather than truncated.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, ErrImageTooLarge
	}

	return data, nil
}
