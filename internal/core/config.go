package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultServerPort is the default HTTP server port
	DefaultServerPort = 8080
	// DefaultRateLimitPerMinute is the number of catalog requests one client may make per minute
	DefaultRateLimitPerMinute = 120
	// DefaultRequestTimeoutSecs bounds every remote catalog call
	DefaultRequestTimeoutSecs = 15
	// DefaultRecordCacheSize is the number of raw catalog records kept in memory
	DefaultRecordCacheSize = 512
	// DefaultMissingCacheSize is the number of not-found ids remembered
	DefaultMissingCacheSize = 10000
	// DefaultMissingFalsePositiveRate is the bloom filter error rate for not-found ids
	DefaultMissingFalsePositiveRate = 0.001
	// DefaultBaseURL is the catalog API endpoint
	DefaultBaseURL = "https://mclients.googleapis.com"
	// DefaultTokenURL is the OAuth endpoint used to refresh access tokens
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
)

// StreamQuality selects the bit rate requested from the stream endpoint.
type StreamQuality string

const (
	StreamQualityLow    StreamQuality = "low"
	StreamQualityMedium StreamQuality = "med"
	StreamQualityHigh   StreamQuality = "hi"
)

// ParseStreamQuality accepts the stream quality names used in configuration.
func ParseStreamQuality(s string) (StreamQuality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hi", "high":
		return StreamQualityHigh, nil
	case "med", "medium":
		return StreamQualityMedium, nil
	case "low":
		return StreamQualityLow, nil
	default:
		return "", fmt.Errorf("unknown stream quality %q (expected low, med or hi)", s)
	}
}

type Config struct {
	PlayMusic PlayMusicConfig
	Server    ServerConfig
	Log       LogConfig
	App       AppConfig
}

type PlayMusicConfig struct {
	Email         string
	DisplayName   string
	TokenPath     string
	StreamQuality StreamQuality
	SigningKey    string
	BaseURL       string
	// OAuth client used to refresh saved tokens; without it tokens are used until they expire
	ClientID     string
	ClientSecret string
	TokenURL     string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RateLimitPerMinute caps catalog requests per client; zero disables the limit
	RateLimitPerMinute int
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	RequestTimeoutSecs int
	RecordCacheSize    int
	MissingCacheSize   int
}

// RequestTimeout returns the per-call timeout for remote catalog requests.
func (c AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

func DefaultConfig() *Config {
	return &Config{
		PlayMusic: PlayMusicConfig{
			TokenPath:     "./playmusic_token.json",
			StreamQuality: StreamQualityHigh,
			BaseURL:       DefaultBaseURL,
			TokenURL:      DefaultTokenURL,
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               DefaultServerPort,
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       30 * time.Second,
			RateLimitPerMinute: DefaultRateLimitPerMinute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			RequestTimeoutSecs: DefaultRequestTimeoutSecs,
			RecordCacheSize:    DefaultRecordCacheSize,
			MissingCacheSize:   DefaultMissingCacheSize,
		},
	}
}

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	if c.PlayMusic.TokenPath == "" {
		return fmt.Errorf("playmusic token path is required")
	}
	if _, err := ParseStreamQuality(string(c.PlayMusic.StreamQuality)); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limit must not be negative, got %d", c.Server.RateLimitPerMinute)
	}
	if c.App.RequestTimeoutSecs <= 0 {
		return fmt.Errorf("request timeout must be positive, got %d", c.App.RequestTimeoutSecs)
	}
	if c.App.RecordCacheSize <= 0 {
		return fmt.Errorf("record cache size must be positive, got %d", c.App.RecordCacheSize)
	}
	if c.App.MissingCacheSize <= 0 {
		return fmt.Errorf("missing cache size must be positive, got %d", c.App.MissingCacheSize)
	}
	return nil
}
