package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"playmusic/internal/core"
	"playmusic/internal/flood"
	"playmusic/pkg/musiclink"
)

type fakeCatalog struct {
	authenticated bool
	tracks        map[string]*core.Track
	albums        map[string]*core.Album
	playlists     map[string]*core.Playlist
	streamErr     error
}

func (f *fakeCatalog) Info() core.PluginInfo { return core.PluginInfo{Name: "fake"} }

func (f *fakeCatalog) ParseURL(u *url.URL) *musiclink.ParseResult {
	return musiclink.NewManager().Parse(u)
}

func (f *fakeCatalog) GetTrack(_ context.Context, id string) (*core.Track, error) {
	if t, ok := f.tracks[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: track %s", core.ErrResourceNotFound, id)
}

func (f *fakeCatalog) GetAlbum(_ context.Context, id string, _ bool) (*core.Album, error) {
	if a, ok := f.albums[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: album %s", core.ErrMalformedRecord, id)
}

func (f *fakeCatalog) GetPlaylist(_ context.Context, id string) (*core.Playlist, error) {
	if p, ok := f.playlists[id]; ok {
		return p, nil
	}
	return nil, core.ErrNotAuthenticated
}

func (f *fakeCatalog) GetDownloadableTrack(_ context.Context, t *core.Track) (*core.TrackFile, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &core.TrackFile{
		Track:       t,
		DownloadURL: "https://stream.example/" + t.ID,
		FileType:    core.FileTypeMP3,
		BitRate:     core.UnknownBitRate,
	}, nil
}

func (f *fakeCatalog) IsAuthenticated() bool { return f.authenticated }

func newFakeCatalog() *fakeCatalog {
	album := &core.Album{ID: "Bfoo", Title: "Album", Artist: core.Artist{ID: "Aart", Name: "Artist"}}
	track := &core.Track{
		ID:             "Tone",
		Title:          "One",
		Artist:         core.Artist{ID: "Aart", Name: "Artist"},
		Album:          album,
		TrackNumber:    1,
		Duration:       3 * time.Second,
		IsDownloadable: true,
		CustomMetadata: []core.MetadataEntry{
			{Name: core.ExplicitMetadataName, Value: "true", IsFlag: true, CanDisplay: true},
		},
	}
	album.Tracks = []*core.Track{track}

	return &fakeCatalog{
		authenticated: true,
		tracks:        map[string]*core.Track{"Tone": track},
		albums:        map[string]*core.Album{"Bfoo": album},
		playlists: map[string]*core.Playlist{
			"share": {ID: "pl1", Title: "Mix", Tracks: []*core.Track{track}},
		},
	}
}

func newTestServer(t *testing.T, catalog Catalog) *httptest.Server {
	t.Helper()
	return newLimitedTestServer(t, catalog, nil)
}

func newLimitedTestServer(t *testing.T, catalog Catalog, limiter *flood.Limiter) *httptest.Server {
	t.Helper()
	mux := setupRoutes(catalog, NewMetrics(), limiter, zap.NewNop())
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, server *httptest.Server, path string) (*http.Response, map[string]any) {
	t.Helper()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+path, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to call %s: %v", path, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("%s returned invalid JSON: %v", path, err)
		}
	}
	return resp, body
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	expectedAddr := "0.0.0.0:9090"
	if server.Addr != expectedAddr {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, expectedAddr)
	}

	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}

	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}

	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestNewServer(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 8081}

	first := NewServer(config, newFakeCatalog(), nil, zap.NewNop())
	second := NewServer(config, newFakeCatalog(), nil, zap.NewNop())

	if first.GetMetrics() == nil || second.GetMetrics() == nil {
		t.Fatal("NewServer() should create metrics when none are given")
	}
	if first.GetMetrics().Registry() == second.GetMetrics().Registry() {
		t.Error("servers should not share a registry")
	}
}

func TestSetupRoutes(t *testing.T) {
	server := newTestServer(t, newFakeCatalog())

	tests := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/healthz", http.StatusOK, "application/json"},
		{"/readyz", http.StatusOK, "application/json"},
		{"/metrics", http.StatusOK, ""},
		{"/", http.StatusOK, "text/html"},
		{"/nowhere", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, _ := get(t, server, tt.path)
			if resp.StatusCode != tt.status {
				t.Errorf("%s returned status %d, expected %d", tt.path, resp.StatusCode, tt.status)
			}
			if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
				t.Errorf("%s Content-Type = %q, expected %q", tt.path, resp.Header.Get("Content-Type"), tt.contentType)
			}
		})
	}
}

func TestHealthzEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeCatalog())

	_, body := get(t, server, "/healthz")
	if body["status"] != "ok" || body["service"] != "playmusic" {
		t.Errorf("Unexpected body %v", body)
	}
}

func TestReadyzEndpoint(t *testing.T) {
	catalog := newFakeCatalog()
	server := newTestServer(t, catalog)

	resp, body := get(t, server, "/readyz")
	if resp.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Errorf("Expected ready, got %d %v", resp.StatusCode, body)
	}

	catalog.authenticated = false
	resp, body = get(t, server, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "not ready" {
		t.Errorf("Expected not ready, got %d %v", resp.StatusCode, body)
	}
}

func TestHomeHandler(t *testing.T) {
	handler := homeHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, element := range []string{"<!DOCTYPE html>", "<title>Play Music</title>", "/metrics", "/healthz", "/readyz", "/resolve"} {
		if !strings.Contains(body, element) {
			t.Errorf("Expected body to contain %q", element)
		}
	}
}

func TestResolveEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeCatalog())

	tests := []struct {
		name   string
		link   string
		status int
		id     string
		typ    string
	}{
		{
			name:   "deep link album",
			link:   "https://play.google.com/music/listen#/album/Bxyz123/Some+Album",
			status: http.StatusOK,
			id:     "Bxyz123",
			typ:    "album",
		},
		{
			name:   "store link artist",
			link:   "https://play.google.com/store/music/artist/Foo?id=Aabc_cid",
			status: http.StatusOK,
			id:     "Aabc",
			typ:    "artist",
		},
		{
			name:   "other host",
			link:   "https://example.com/music/m/Bxyz",
			status: http.StatusNotFound,
		},
		{
			name:   "relative",
			link:   "/music/m/Bxyz",
			status: http.StatusBadRequest,
		},
		{
			name:   "missing",
			link:   "",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, server, "/resolve?url="+url.QueryEscape(tt.link))
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, expected %d (%v)", resp.StatusCode, tt.status, body)
			}
			if tt.status != http.StatusOK {
				return
			}
			if body["id"] != tt.id || body["type"] != tt.typ {
				t.Errorf("got id=%v type=%v, expected id=%q type=%q", body["id"], body["type"], tt.id, tt.typ)
			}
		})
	}

	_, body := get(t, server, "/resolve?url="+url.QueryEscape("https://example.com/x"))
	if body["error"] != "no match" {
		t.Errorf("error = %v, expected %q", body["error"], "no match")
	}
}

func TestCatalogEndpoints(t *testing.T) {
	catalog := newFakeCatalog()
	server := newTestServer(t, catalog)

	resp, body := get(t, server, "/tracks/Tone")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/tracks/Tone status = %d", resp.StatusCode)
	}
	if body["explicit"] != true || body["isDownloadable"] != true || body["albumId"] != "Bfoo" {
		t.Errorf("unexpected track body %v", body)
	}
	if body["durationMillis"] != float64(3000) {
		t.Errorf("durationMillis = %v, expected 3000", body["durationMillis"])
	}

	resp, body = get(t, server, "/albums/Bfoo")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/albums/Bfoo status = %d", resp.StatusCode)
	}
	if tracks, ok := body["tracks"].([]any); !ok || len(tracks) != 1 {
		t.Errorf("album tracks = %v, expected one track", body["tracks"])
	}

	resp, body = get(t, server, "/playlists/share")
	if resp.StatusCode != http.StatusOK || body["title"] != "Mix" {
		t.Errorf("/playlists/share = %d %v", resp.StatusCode, body)
	}

	resp, body = get(t, server, "/tracks/Tone/stream")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/tracks/Tone/stream status = %d", resp.StatusCode)
	}
	if body["downloadUrl"] != "https://stream.example/Tone" || body["mimeType"] != "audio/mpeg" || body["bitRate"] != float64(-1) {
		t.Errorf("unexpected stream body %v", body)
	}
}

func TestCatalogErrorMapping(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.streamErr = fmt.Errorf("%w: no stream", core.ErrInvalidSession)
	server := newTestServer(t, catalog)

	tests := []struct {
		path   string
		status int
	}{
		{"/tracks/Tmissing", http.StatusNotFound},
		{"/albums/Bbroken", http.StatusBadGateway},
		{"/playlists/other", http.StatusUnauthorized},
		{"/tracks/Tone/stream", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, server, tt.path)
			if resp.StatusCode != tt.status {
				t.Errorf("%s status = %d, expected %d", tt.path, resp.StatusCode, tt.status)
			}
			if body["error"] == "" || body["error"] == nil {
				t.Errorf("%s should report an error message", tt.path)
			}
		})
	}
}

func TestCatalogErrorHidesUpstreamDetail(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.streamErr = fmt.Errorf("%w: status 503: <html>backend-7 overloaded</html>", core.ErrUpstreamUnavailable)
	server := newTestServer(t, catalog)

	tests := []struct {
		path     string
		status   int
		expected string
	}{
		{"/tracks/Tone/stream", http.StatusBadGateway, "bad gateway"},
		{"/albums/Bbroken", http.StatusBadGateway, "bad gateway"},
		{"/tracks/Tmissing", http.StatusNotFound, "resource not found: track Tmissing"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, server, tt.path)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, expected %d", resp.StatusCode, tt.status)
			}
			if body["error"] != tt.expected {
				t.Errorf("error = %v, expected %q", body["error"], tt.expected)
			}
		})
	}
}

func TestCacheAndLimiterGauges(t *testing.T) {
	catalog := &cachingCatalog{
		fakeCatalog: newFakeCatalog(),
		stats:       core.CacheStats{Tracks: 3, Albums: 2, Missing: 1},
	}
	server := NewServer(&core.ServerConfig{Host: "localhost", Port: 0, RateLimitPerMinute: 5},
		catalog, nil, zap.NewNop())
	defer server.limiter.Stop()

	server.limiter.Allow("10.0.0.1")
	server.limiter.Allow("10.0.0.2")

	families, err := server.GetMetrics().Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	cacheEntries := make(map[string]float64)
	activeClients := -1.0
	for _, family := range families {
		switch family.GetName() {
		case "playmusic_cache_entries":
			for _, metric := range family.GetMetric() {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "kind" {
						cacheEntries[label.GetValue()] = metric.GetGauge().GetValue()
					}
				}
			}
		case "playmusic_rate_limit_active_clients":
			activeClients = family.GetMetric()[0].GetGauge().GetValue()
		}
	}

	expected := map[string]float64{"track": 3, "album": 2, "missing": 1}
	for kind, value := range expected {
		if cacheEntries[kind] != value {
			t.Errorf("cache entries for %s = %v, expected %v", kind, cacheEntries[kind], value)
		}
	}
	if activeClients != 2 {
		t.Errorf("active clients = %v, expected 2", activeClients)
	}
}

type cachingCatalog struct {
	*fakeCatalog
	stats core.CacheStats
}

func (c *cachingCatalog) CacheStats() core.CacheStats { return c.stats }

func TestMetricsRecorder(t *testing.T) {
	metrics := NewMetrics()
	metrics.RecordResolve("album")
	metrics.RecordRemoteCall("get_track", "ok", 20*time.Millisecond)
	metrics.RecordAdaptError("track")
	metrics.RecordCacheHit("track")
	metrics.RecordCacheMiss("album")

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}

	for _, name := range []string{
		"playmusic_resolves_total",
		"playmusic_remote_calls_total",
		"playmusic_remote_call_duration_seconds",
		"playmusic_adapt_errors_total",
		"playmusic_cache_hits_total",
		"playmusic_cache_misses_total",
	} {
		if !names[name] {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestServer_StartContextCancellation(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 0}
	server := NewServer(config, newFakeCatalog(), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, expected nil after cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestServer_StartInvalidPort(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: -1}
	server := NewServer(config, newFakeCatalog(), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err == nil {
		t.Error("Start() should fail for an invalid port")
	}
}

func TestResolveTextEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeCatalog())

	body := "two for you: https://play.google.com/music/m/Bfoo, and " +
		"https://play.google.com/music/listen#/artist/Aart/Name plus https://example.com/x"
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost,
		server.URL+"/resolve", strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /resolve failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, expected 200", resp.StatusCode)
	}

	var got resolveListView
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if got.Links != 3 {
		t.Errorf("Links = %d, expected 3", got.Links)
	}
	if len(got.Results) != 2 {
		t.Fatalf("got %d results, expected 2", len(got.Results))
	}
	if got.Results[0].ID != "Bfoo" || got.Results[0].Type != musiclink.MediaTypeAlbum {
		t.Errorf("first result = %+v", got.Results[0])
	}
	if got.Results[1].ID != "Aart" || got.Results[1].Type != musiclink.MediaTypeArtist {
		t.Errorf("second result = %+v", got.Results[1])
	}
}

func TestRateLimit(t *testing.T) {
	limiter := flood.NewLimiter(2)
	t.Cleanup(limiter.Stop)
	server := newLimitedTestServer(t, newFakeCatalog(), limiter)

	for i := range 2 {
		if resp, _ := get(t, server, "/tracks/Tone"); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d, expected 200", i+1, resp.StatusCode)
		}
	}

	resp, body := get(t, server, "/tracks/Tone")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, expected 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("429 should carry Retry-After")
	}
	if body["error"] != "too many requests" {
		t.Errorf("error = %v", body["error"])
	}

	if resp, _ := get(t, server, "/healthz"); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz should not be rate limited, got %d", resp.StatusCode)
	}
}

func TestNewServerRateLimit(t *testing.T) {
	disabled := NewServer(&core.ServerConfig{Host: "localhost", Port: 0}, newFakeCatalog(), nil, zap.NewNop())
	if disabled.limiter != nil {
		t.Error("zero RateLimitPerMinute should disable the limiter")
	}

	enabled := NewServer(&core.ServerConfig{Host: "localhost", Port: 0, RateLimitPerMinute: 10},
		newFakeCatalog(), nil, zap.NewNop())
	if enabled.limiter == nil {
		t.Fatal("RateLimitPerMinute should enable the limiter")
	}
	defer enabled.limiter.Stop()
	if got := enabled.limiter.Stats().LimitPerMinute; got != 10 {
		t.Errorf("LimitPerMinute = %d, expected 10", got)
	}
}
