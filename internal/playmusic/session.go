package playmusic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"playmusic/internal/core"
)

const (
	// FilePermission is the permission for token files
	FilePermission = 0600
)

// Session is one signed-in (or signed-out) connection to the service.
// Sessions are immutable; signing in or resetting replaces the whole value.
type Session struct {
	client  CatalogClient
	account core.AccountInfo
}

// NewSession creates a session backed by client. A nil client yields a signed-out session.
func NewSession(client CatalogClient, account core.AccountInfo) *Session {
	return &Session{client: client, account: account}
}

// Client returns the session's catalog client, or ErrNotAuthenticated for a signed-out session.
func (s *Session) Client() (CatalogClient, error) {
	if s == nil || s.client == nil {
		return nil, core.ErrNotAuthenticated
	}
	return s.client, nil
}

func (s *Session) IsAuthenticated() bool {
	return s != nil && s.client != nil
}

func (s *Session) Account() core.AccountInfo {
	if s == nil {
		return core.AccountInfo{}
	}
	return s.account
}

type TokenData struct {
	Token       *oauth2.Token `json:"token"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
}

// TokenStore persists the OAuth token between runs.
type TokenStore struct {
	path string
}

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Exists reports whether a token has been saved.
func (ts *TokenStore) Exists() bool {
	_, err := os.Stat(ts.path)
	return err == nil
}

func (ts *TokenStore) Load() (*TokenData, error) {
	data, err := os.ReadFile(ts.path)
	if err != nil {
		return nil, err
	}

	var tokenData TokenData
	if err := json.Unmarshal(data, &tokenData); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	if tokenData.Token == nil {
		return nil, errors.New("token file has no token")
	}

	return &tokenData, nil
}

func (ts *TokenStore) Save(tokenData *TokenData) error {
	data, err := json.MarshalIndent(tokenData, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ts.path, data, FilePermission)
}

// SessionFactory builds the catalog client for a saved token.
type SessionFactory func(ctx context.Context, token *oauth2.Token) CatalogClient

// NewMobileSessionFactory returns a factory producing MobileClients that authorize with
// the token, refreshing it through the configured OAuth client when one is set.
func NewMobileSessionFactory(cfg *core.PlayMusicConfig, logger *zap.Logger) SessionFactory {
	return func(ctx context.Context, token *oauth2.Token) CatalogClient {
		return NewMobileClient(authorizedHTTPClient(ctx, cfg, token), cfg.BaseURL, cfg.SigningKey, logger)
	}
}

func authorizedHTTPClient(ctx context.Context, cfg *core.PlayMusicConfig, token *oauth2.Token) *http.Client {
	var source oauth2.TokenSource
	if cfg.ClientID != "" {
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		}
		source = conf.TokenSource(ctx, token)
	} else {
		source = oauth2.StaticTokenSource(token)
	}
	return oauth2.NewClient(ctx, source)
}
