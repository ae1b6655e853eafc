package core

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.PlayMusic.StreamQuality != StreamQualityHigh {
		t.Errorf("Expected default stream quality %q, got %q", StreamQualityHigh, config.PlayMusic.StreamQuality)
	}

	if config.App.RequestTimeout() != DefaultRequestTimeoutSecs*time.Second {
		t.Errorf("Expected default request timeout %ds, got %v", DefaultRequestTimeoutSecs, config.App.RequestTimeout())
	}

	if config.PlayMusic.BaseURL != DefaultBaseURL {
		t.Errorf("Expected default base URL %s, got %s", DefaultBaseURL, config.PlayMusic.BaseURL)
	}

	if config.Server.RateLimitPerMinute != DefaultRateLimitPerMinute {
		t.Errorf("Expected default rate limit %d, got %d", DefaultRateLimitPerMinute, config.Server.RateLimitPerMinute)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}

	config.Server.RateLimitPerMinute = 0
	if err := config.Validate(); err != nil {
		t.Errorf("A disabled rate limit should validate, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing token path", mutate: func(c *Config) { c.PlayMusic.TokenPath = "" }},
		{name: "bad stream quality", mutate: func(c *Config) { c.PlayMusic.StreamQuality = "lossless" }},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }},
		{name: "negative rate limit", mutate: func(c *Config) { c.Server.RateLimitPerMinute = -1 }},
		{name: "zero timeout", mutate: func(c *Config) { c.App.RequestTimeoutSecs = 0 }},
		{name: "zero record cache", mutate: func(c *Config) { c.App.RecordCacheSize = 0 }},
		{name: "negative missing cache", mutate: func(c *Config) { c.App.MissingCacheSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Validate() expected error but got none")
			}
		})
	}
}

func TestParseStreamQuality(t *testing.T) {
	tests := []struct {
		input    string
		expected StreamQuality
		wantErr  bool
	}{
		{input: "", expected: StreamQualityHigh},
		{input: "hi", expected: StreamQualityHigh},
		{input: "High", expected: StreamQualityHigh},
		{input: "medium", expected: StreamQualityMedium},
		{input: " med ", expected: StreamQualityMedium},
		{input: "low", expected: StreamQualityLow},
		{input: "lossless", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseStreamQuality(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseStreamQuality(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseStreamQuality(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseStreamQuality(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestConfigConstants(t *testing.T) {
	if DefaultServerPort <= 0 || DefaultServerPort > 65535 {
		t.Error("DefaultServerPort should be a valid port number")
	}

	if DefaultMissingFalsePositiveRate <= 0 || DefaultMissingFalsePositiveRate >= 1 {
		t.Error("DefaultMissingFalsePositiveRate should be a probability")
	}
}
