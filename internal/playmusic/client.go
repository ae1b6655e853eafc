package playmusic

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // The stream endpoint mandates HMAC-SHA1 signatures.
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"playmusic/internal/core"
)

const (
	// sjPath is the catalog API root under the base URL.
	sjPath = "/sj/v2.5"
	// streamPath is the stream URL endpoint under the base URL.
	streamPath = "/music/mplay"
	// DefaultFeedPageSize is the number of items requested per feed page.
	DefaultFeedPageSize = 250
	// maxErrorBodySize limits how much of an error response is kept for diagnostics.
	maxErrorBodySize = 512
)

// CatalogClient is the remote catalog the service facade reads from.
type CatalogClient interface {
	GetTrack(ctx context.Context, trackID string) (*Track, error)
	GetAlbum(ctx context.Context, albumID string, includeTracks bool) (*Album, error)
	ListPlaylists(ctx context.Context) ([]Playlist, error)
	ListPlaylistEntries(ctx context.Context, playlistID string) ([]PlaylistEntry, error)
	GetStreamURL(ctx context.Context, trackID string, quality core.StreamQuality) (string, error)
}

// MobileClient talks to the catalog API the way the Android app does.
type MobileClient struct {
	baseURL    string
	client     *http.Client
	noRedirect *http.Client
	signingKey []byte
	pageSize   int
	logger     *zap.Logger
	now        func() time.Time
}

// NewMobileClient creates a client. httpClient must add authorization to requests;
// see Session for how one is built from an OAuth token.
func NewMobileClient(httpClient *http.Client, baseURL, signingKey string, logger *zap.Logger) *MobileClient {
	if logger == nil {
		logger = zap.NewNop()
	}

	noRedirect := *httpClient
	noRedirect.CheckRedirect = func(_ *http.Request, _ []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &MobileClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     httpClient,
		noRedirect: &noRedirect,
		signingKey: []byte(signingKey),
		pageSize:   DefaultFeedPageSize,
		logger:     logger,
		now:        time.Now,
	}
}

// GetTrack fetches a single catalog track by store id.
func (c *MobileClient) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	params := url.Values{}
	params.Set("nid", trackID)

	var track Track
	if err := c.getJSON(ctx, "fetchtrack", params, &track); err != nil {
		return nil, fmt.Errorf("fetch track %s: %w", trackID, err)
	}
	return &track, nil
}

// GetAlbum fetches an album, optionally with its track list.
func (c *MobileClient) GetAlbum(ctx context.Context, albumID string, includeTracks bool) (*Album, error) {
	params := url.Values{}
	params.Set("nid", albumID)
	params.Set("include-tracks", strconv.FormatBool(includeTracks))
	params.Set("include-description", "false")

	var album Album
	if err := c.getJSON(ctx, "fetchalbum", params, &album); err != nil {
		return nil, fmt.Errorf("fetch album %s: %w", albumID, err)
	}
	return &album, nil
}

// ListPlaylists returns every playlist in the user's library.
func (c *MobileClient) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	playlists, err := fetchFeed[Playlist](ctx, c, "playlistfeed")
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	return playlists, nil
}

// ListPlaylistEntries returns the entries of one playlist. The entry feed spans
// every playlist in the library, so it is read in full and filtered.
func (c *MobileClient) ListPlaylistEntries(ctx context.Context, playlistID string) ([]PlaylistEntry, error) {
	entries, err := fetchFeed[PlaylistEntry](ctx, c, "plentryfeed")
	if err != nil {
		return nil, fmt.Errorf("list playlist entries: %w", err)
	}

	filtered := entries[:0]
	for i := range entries {
		if entries[i].PlaylistID == playlistID {
			filtered = append(filtered, entries[i])
		}
	}
	return filtered, nil
}

// GetStreamURL asks the stream endpoint for a short-lived audio URL. The endpoint
// answers with a redirect whose Location is the stream; an empty string means the
// service returned no stream for the track.
func (c *MobileClient) GetStreamURL(ctx context.Context, trackID string, quality core.StreamQuality) (string, error) {
	salt := strconv.FormatInt(c.now().UnixMilli(), 10)

	params := url.Values{}
	params.Set("opt", string(quality))
	params.Set("net", "mob")
	params.Set("pt", "e")
	params.Set("slt", salt)
	params.Set("sig", c.sign(trackID, salt))
	if strings.HasPrefix(trackID, "T") {
		params.Set("mjck", trackID)
	} else {
		params.Set("songid", trackID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+streamPath+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest:
		return resp.Header.Get("Location"), nil
	case resp.StatusCode == http.StatusOK:
		c.logger.Debug("Stream endpoint answered without redirect", zap.String("trackID", trackID))
		return "", nil
	default:
		return "", statusError(resp)
	}
}

// sign computes the stream request signature over id+salt.
func (c *MobileClient) sign(id, salt string) string {
	mac := hmac.New(sha1.New, c.signingKey)
	mac.Write([]byte(id + salt))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (c *MobileClient) getJSON(ctx context.Context, endpoint string, params url.Values, dest any) error {
	params.Set("alt", "json")
	params.Set("hl", "en_US")
	params.Set("tier", "aa")

	reqURL := fmt.Sprintf("%s%s/%s?%s", c.baseURL, sjPath, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return c.doJSON(req, dest)
}

func (c *MobileClient) postJSON(ctx context.Context, endpoint string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	reqURL := fmt.Sprintf("%s%s/%s?alt=json&hl=en_US&tier=aa", c.baseURL, sjPath, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doJSON(req, dest)
}

func (c *MobileClient) doJSON(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", commonUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode response: %w", core.ErrMalformedRecord, err)
	}
	return nil
}

// fetchFeed pages through a feed endpoint until the server stops returning a page token.
func fetchFeed[T any](ctx context.Context, c *MobileClient, endpoint string) ([]T, error) {
	var items []T
	token := ""

	for {
		var page feedResponse[T]
		if err := c.postJSON(ctx, endpoint, feedRequest{MaxResults: c.pageSize, StartToken: token}, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Data.Items...)

		if page.NextPageToken == "" || page.NextPageToken == token {
			return items, nil
		}
		token = page.NextPageToken

		c.logger.Debug("Fetching next feed page",
			zap.String("endpoint", endpoint),
			zap.Int("itemsSoFar", len(items)))
	}
}

// statusError maps an unsuccessful response onto the core error taxonomy.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	detail := strings.TrimSpace(string(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: status %d", core.ErrResourceNotFound, resp.StatusCode)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: status %d", core.ErrInvalidSession, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", core.ErrUpstreamUnavailable, resp.StatusCode, detail)
	}
}
