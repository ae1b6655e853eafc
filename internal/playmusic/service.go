// Package playmusic adapts the Google Play Music catalog to the application's music model.
package playmusic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"playmusic/internal/core"
	"playmusic/internal/store"
	"playmusic/pkg/musiclink"
)

const (
	// maxConcurrentEntryFetches bounds parallel track lookups while filling a playlist
	maxConcurrentEntryFetches = 4
	// storeTrackPrefix marks catalog track ids; other entry ids refer to uploaded tracks
	storeTrackPrefix = "T"
)

// Options carries the collaborators a Service can be given instead of its defaults.
type Options struct {
	Images  *ImageFetcher
	Factory SessionFactory
	Metrics core.MetricsRecorder
	Missing core.MissingStore
}

// Service is the Play Music catalog source: it fetches records through the current
// session and adapts them into the core model.
type Service struct {
	config  *core.PlayMusicConfig
	timeout time.Duration
	logger  *zap.Logger

	resolver *musiclink.Manager
	adapter  *Adapter
	tokens   *TokenStore
	factory  SessionFactory
	session  atomic.Pointer[Session]

	tracks  *store.RecordCache[*Track]
	albums  *store.RecordCache[*Album]
	missing core.MissingStore
	metrics core.MetricsRecorder
}

func NewService(config *core.Config, logger *zap.Logger, opts Options) (*Service, error) {
	tracks, err := store.NewRecordCache[*Track](config.App.RecordCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create track cache: %w", err)
	}
	albums, err := store.NewRecordCache[*Album](config.App.RecordCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create album cache: %w", err)
	}

	if opts.Factory == nil {
		opts.Factory = NewMobileSessionFactory(&config.PlayMusic, logger.Named("client"))
	}
	if opts.Metrics == nil {
		opts.Metrics = core.NopMetrics{}
	}
	if opts.Missing == nil {
		opts.Missing = store.NewMissingSet(config.App.MissingCacheSize, core.DefaultMissingFalsePositiveRate)
	}

	s := &Service{
		config:   &config.PlayMusic,
		timeout:  config.App.RequestTimeout(),
		logger:   logger,
		resolver: musiclink.NewManager(),
		adapter:  NewAdapter(opts.Images),
		tokens:   NewTokenStore(config.PlayMusic.TokenPath),
		factory:  opts.Factory,
		tracks:   tracks,
		albums:   albums,
		missing:  opts.Missing,
		metrics:  opts.Metrics,
	}
	s.session.Store(s.signedOutSession())

	return s, nil
}

func (s *Service) Info() core.PluginInfo {
	return core.PluginInfo{
		Name:        "Google Play Music",
		Description: "Plugin for the Google Play Music service.",
		Author:      "svbnet",
		Website:     "https://github.com/svbnet/AthamePlugin.GooglePlayMusic",
	}
}

// BaseURLs lists the origins whose links ParseURL understands.
func (s *Service) BaseURLs() []string {
	return []string{"http://" + musiclink.PlayMusicHost, "https://" + musiclink.PlayMusicHost}
}

// ParseURL classifies a link. Nil means the link is not a Play Music catalog link.
func (s *Service) ParseURL(u *url.URL) *musiclink.ParseResult {
	result := s.resolver.Parse(u)
	if result == nil {
		s.metrics.RecordResolve("none")
		return nil
	}

	s.metrics.RecordResolve(result.Type.String())
	return result
}

// Session returns the current session.
func (s *Service) Session() *Session {
	return s.session.Load()
}

func (s *Service) IsAuthenticated() bool {
	return s.Session().IsAuthenticated()
}

func (s *Service) Account() core.AccountInfo {
	return s.Session().Account()
}

// Reset drops the current session and everything learned through it.
func (s *Service) Reset() {
	s.session.Store(s.signedOutSession())
	s.forget()
	s.logger.Info("Session reset")
}

// forget drops cached records and missing ids. What one account may see
// differs from another, so nothing learned through a session outlives it.
func (s *Service) forget() {
	s.tracks.Purge()
	s.albums.Purge()
	s.missing.Clear()
}

// CacheStats reports the number of records and missing ids held in memory.
func (s *Service) CacheStats() core.CacheStats {
	return core.CacheStats{
		Tracks:  s.tracks.Len(),
		Albums:  s.albums.Len(),
		Missing: s.missing.Size(),
	}
}

// HasSavedSession reports whether a token was saved by an earlier sign-in.
func (s *Service) HasSavedSession() bool {
	return s.tokens.Exists()
}

// Restore signs in with the saved token. It returns false when there is nothing to restore.
func (s *Service) Restore(ctx context.Context) (bool, error) {
	if !s.HasSavedSession() {
		return false, nil
	}

	tokenData, err := s.tokens.Load()
	if err != nil {
		return false, fmt.Errorf("load saved token: %w", err)
	}

	s.install(ctx, tokenData)
	s.logger.Info("Restored saved session", zap.String("account", tokenData.Email))
	return true, nil
}

// SignIn starts a session with an already issued OAuth token, saving it when remember is set.
func (s *Service) SignIn(ctx context.Context, token *oauth2.Token, email, displayName string, remember bool) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return errors.New("sign in requires an access or refresh token")
	}

	tokenData := &TokenData{Token: token, Email: email, DisplayName: displayName}
	if remember {
		if err := s.tokens.Save(tokenData); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
	}

	s.install(ctx, tokenData)
	s.logger.Info("Signed in", zap.String("account", email), zap.Bool("remembered", remember))
	return nil
}

func (s *Service) install(ctx context.Context, tokenData *TokenData) {
	account := core.AccountInfo{DisplayID: tokenData.Email, DisplayName: tokenData.DisplayName}
	if account.DisplayID == "" {
		account.DisplayID = s.config.Email
	}
	if account.DisplayName == "" {
		account.DisplayName = s.config.DisplayName
	}

	// The client refreshes tokens long after the caller's request is done.
	client := s.factory(context.WithoutCancel(ctx), tokenData.Token)
	s.session.Store(NewSession(client, account))
	s.forget()
}

func (s *Service) signedOutSession() *Session {
	return NewSession(nil, core.AccountInfo{DisplayID: s.config.Email, DisplayName: s.config.DisplayName})
}

// GetTrack fetches a track. Its Album is an embedded placeholder.
func (s *Service) GetTrack(ctx context.Context, trackID string) (*core.Track, error) {
	record, err := s.fetchTrack(ctx, s.Session(), trackID)
	if err != nil {
		return nil, err
	}

	track, err := s.adapter.TrackFromRemote(record)
	if err != nil {
		s.metrics.RecordAdaptError("track")
		return nil, fmt.Errorf("adapt track %s: %w", trackID, err)
	}
	return track, nil
}

// GetAlbum fetches an album. The catalog always delivers albums with their tracks,
// so withTracks only controls whether they are kept.
func (s *Service) GetAlbum(ctx context.Context, albumID string, withTracks bool) (*core.Album, error) {
	record, err := s.fetchAlbum(ctx, s.Session(), albumID)
	if err != nil {
		return nil, err
	}

	album, err := s.adapter.AlbumFromRemote(record)
	if err != nil {
		s.metrics.RecordAdaptError("album")
		return nil, fmt.Errorf("adapt album %s: %w", albumID, err)
	}

	if !withTracks {
		album.Tracks = []*core.Track{}
	}
	return album, nil
}

// GetPlaylist fetches one of the user's own playlists by share token or id.
func (s *Service) GetPlaylist(ctx context.Context, playlistID string) (*core.Playlist, error) {
	sess := s.Session()
	client, err := sess.Client()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	wanted := decodePlaylistID(playlistID)

	start := time.Now()
	playlists, err := client.ListPlaylists(ctx)
	s.observe("list_playlists", start, err)
	if err != nil {
		return nil, err
	}

	var info *Playlist
	for i := range playlists {
		if playlists[i].Deleted {
			continue
		}
		if playlists[i].ShareToken == wanted || playlists[i].ID == wanted {
			info = &playlists[i]
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: playlist %s not found, or is not a user playlist; only playlists the user owns can be downloaded",
			core.ErrResourceNotFound, playlistID)
	}

	start = time.Now()
	entries, err := client.ListPlaylistEntries(ctx, info.ID)
	s.observe("list_playlist_entries", start, err)
	if err != nil {
		return nil, err
	}

	if err := s.fillEntryTracks(ctx, sess, entries); err != nil {
		return nil, err
	}

	playlist, err := s.adapter.PlaylistFromRemote(info, entries)
	if err != nil {
		s.metrics.RecordAdaptError("playlist")
		return nil, fmt.Errorf("adapt playlist %s: %w", playlistID, err)
	}

	s.logger.Debug("Fetched playlist",
		zap.String("playlistID", info.ID),
		zap.Int("entries", len(entries)),
		zap.Int("tracks", len(playlist.Tracks)))

	return playlist, nil
}

// fillEntryTracks looks up catalog tracks for entries that arrived without one.
// Tracks the catalog no longer has are left out of the playlist.
func (s *Service) fillEntryTracks(ctx context.Context, sess *Session, entries []PlaylistEntry) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEntryFetches)

	for i := range entries {
		entry := &entries[i]
		if entry.Deleted || entry.Track != nil || !strings.HasPrefix(entry.TrackID, storeTrackPrefix) {
			continue
		}

		g.Go(func() error {
			record, err := s.fetchTrack(gCtx, sess, entry.TrackID)
			if errors.Is(err, core.ErrResourceNotFound) {
				s.logger.Debug("Skipping playlist entry with missing track",
					zap.String("entryID", entry.ID),
					zap.String("trackID", entry.TrackID))
				return nil
			}
			if err != nil {
				return err
			}
			entry.Track = record
			return nil
		})
	}

	return g.Wait()
}

// GetDownloadableTrack resolves the stream a track can be downloaded from.
func (s *Service) GetDownloadableTrack(ctx context.Context, track *core.Track) (*core.TrackFile, error) {
	if track == nil || track.ID == "" {
		return nil, errors.New("track id is required")
	}

	client, err := s.Session().Client()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	streamURL, err := client.GetStreamURL(ctx, track.ID, s.config.StreamQuality)
	s.observe("stream_url", start, err)
	if err != nil {
		return nil, fmt.Errorf("get stream url for %s: %w", track.ID, err)
	}
	if streamURL == "" {
		return nil, fmt.Errorf("%w: stream URL unavailable, check your subscription is active then try again",
			core.ErrInvalidSession)
	}

	return &core.TrackFile{
		Track:       track,
		DownloadURL: streamURL,
		// All streams are MP3; the service does not report their bit rate.
		FileType: core.FileTypeMP3,
		BitRate:  core.UnknownBitRate,
	}, nil
}

func (s *Service) fetchTrack(ctx context.Context, sess *Session, trackID string) (*Track, error) {
	return fetchRecord(ctx, s, sess, "track", trackID, s.tracks,
		func(ctx context.Context, client CatalogClient) (*Track, error) {
			return client.GetTrack(ctx, trackID)
		})
}

func (s *Service) fetchAlbum(ctx context.Context, sess *Session, albumID string) (*Album, error) {
	return fetchRecord(ctx, s, sess, "album", albumID, s.albums,
		func(ctx context.Context, client CatalogClient) (*Album, error) {
			return client.GetAlbum(ctx, albumID, true)
		})
}

// fetchRecord serves a record from cache, or fetches it through sess and caches it.
// Ids the catalog reported missing fail without another round trip.
func fetchRecord[T any](
	ctx context.Context,
	s *Service,
	sess *Session,
	kind, id string,
	cache *store.RecordCache[*T],
	fetch func(context.Context, CatalogClient) (*T, error),
) (*T, error) {
	if id == "" {
		return nil, fmt.Errorf("%s id is required", kind)
	}

	client, err := sess.Client()
	if err != nil {
		return nil, err
	}

	key := kind + ":" + id
	if s.missing.Has(key) {
		s.metrics.RecordCacheHit("missing")
		return nil, fmt.Errorf("%w: %s %s", core.ErrResourceNotFound, kind, id)
	}
	if record, ok := cache.Get(id); ok {
		s.metrics.RecordCacheHit(kind)
		return record, nil
	}
	s.metrics.RecordCacheMiss(kind)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	record, err := fetch(ctx, client)
	s.observe("get_"+kind, start, err)
	if err != nil {
		if errors.Is(err, core.ErrResourceNotFound) {
			s.missing.Add(key)
		}
		s.logger.Debug("Catalog lookup failed", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
		return nil, err
	}

	cache.Add(id, record)
	return record, nil
}

func (s *Service) observe(operation string, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, core.ErrResourceNotFound):
		status = "not_found"
	case errors.Is(err, core.ErrInvalidSession):
		status = "unauthorized"
	default:
		status = "error"
	}
	s.metrics.RecordRemoteCall(operation, status, time.Since(start))
}

// decodePlaylistID undoes the percent-encoding playlist share tokens carry in links.
func decodePlaylistID(id string) string {
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return strings.ReplaceAll(id, "%3D", "=")
}

var _ core.CatalogService = (*Service)(nil)
