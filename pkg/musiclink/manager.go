package musiclink

import (
	"net/url"
)

// Manager coordinates multiple link resolvers so each service can claim its own links.
type Manager struct {
	resolvers []Resolver
}

// NewManager creates a new link manager with all supported resolvers.
func NewManager() *Manager {
	return NewManagerWith(NewPlayMusicResolver())
}

// NewManagerWith creates a link manager that consults the given resolvers in order.
func NewManagerWith(resolvers ...Resolver) *Manager {
	return &Manager{resolvers: resolvers}
}

// Parse asks each resolver in turn and returns the first non-nil result.
func (m *Manager) Parse(u *url.URL) *ParseResult {
	if u == nil {
		return nil
	}

	for _, resolver := range m.resolvers {
		if result := resolver.Parse(u); result != nil {
			return result
		}
	}

	return nil
}

// Resolve parses rawURL and classifies it. Unparseable or relative URLs yield nil.
func (m *Manager) Resolve(rawURL string) *ParseResult {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return nil
	}
	return m.Parse(u)
}

// CanResolve checks if any resolver can handle the given URL.
func (m *Manager) CanResolve(rawURL string) bool {
	for _, resolver := range m.resolvers {
		if resolver.CanResolve(rawURL) {
			return true
		}
	}
	return false
}
