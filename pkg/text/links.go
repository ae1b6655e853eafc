// Package text finds links in free-form text such as pasted messages.
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	urlRegex        = regexp.MustCompile(`https?://\S+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// trackingParams are query parameters added by share sheets that never identify content.
	trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "si"}
)

// trailingPunctuation is stripped from the end of a link found in prose.
const trailingPunctuation = ".,!?;:)]}>\"'"

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Normalize folds compatibility characters (full-width letters, ligatures) and
// collapses whitespace so links pasted from chat apps match.
func (e *Extractor) Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ExtractLinks returns the distinct http(s) links in text, in order of appearance.
func (e *Extractor) ExtractLinks(text string) []string {
	matches := urlRegex.FindAllString(e.Normalize(text), -1)

	seen := make(map[string]bool, len(matches))
	links := make([]string, 0, len(matches))
	for _, match := range matches {
		link := e.CleanURL(match)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}

	return links
}

// CleanURL trims prose punctuation and tracking parameters from a link.
// It returns "" when rawURL is not an absolute http(s) URL.
func (e *Extractor) CleanURL(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, trailingPunctuation)

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	// Leave the query untouched unless something is removed; re-encoding reorders it.
	q := u.Query()
	removed := false
	for _, param := range trackingParams {
		if q.Has(param) {
			q.Del(param)
			removed = true
		}
	}
	if removed {
		u.RawQuery = q.Encode()
	}

	return u.String()
}
