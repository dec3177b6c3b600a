// Package serp holds the per-engine search strategies: how a query becomes a
// URL, which selectors locate each result type on the rendered page, and how
// the page parses into typed records.
package serp

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/lookout/models"
)

// Strategy describes one search engine. Implementations are stateless and
// safe for concurrent use; all navigation is driven by the session
// coordinator, a Strategy only supplies URLs, selectors, and parsing.
type Strategy interface {
	// Engine returns the engine identifier this strategy serves.
	Engine() models.Engine

	// SearchURL builds the direct query URL. num is mapped to the engine's
	// own pagination convention and capped at 20.
	SearchURL(query string, num int) string

	// HomeURL is the engine homepage, used by the in-page search-box flow
	// and the homepage-first consent-banner workaround.
	HomeURL() string

	// BoxSelector locates the search input on the homepage.
	BoxSelector() string

	// Parse converts a rendered results page into typed records. Absence of
	// related questions or a knowledge panel is not an error; organic
	// positions are contiguous starting at 1.
	Parse(doc *goquery.Document, num int) *models.SearchResultSet
}

// ForEngine returns the strategy for a concrete engine. EngineAny resolves to
// Google; the coordinator owns the fallback-to-Bing policy.
func ForEngine(e models.Engine) Strategy {
	if e == models.EngineBing {
		return Bing{}
	}
	return Google{}
}

const maxSnippetLen = 350

// Boilerplate fragments stripped from extracted text.
var junkPhrases = []string{
	"Skip to main content",
	"Accept cookies",
	"Cookie notice",
	"Privacy policy",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// cleanText collapses whitespace and removes common page boilerplate.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	for _, junk := range junkPhrases {
		s = strings.ReplaceAll(s, junk, "")
	}
	return strings.TrimSpace(s)
}

// capSnippet truncates a snippet to the engine-independent display limit.
func capSnippet(s string) string {
	if len(s) > maxSnippetLen {
		return s[:maxSnippetLen]
	}
	return s
}

// displayedLink derives the displayed host for a result link, with the
// leading "www." stripped.
func displayedLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// looksLikeQuestion filters related-question candidates: real questions have
// words, spaces, and a question mark, as opposed to space-stripped word blobs
// some widgets produce.
func looksLikeQuestion(s string) bool {
	return strings.Contains(s, "?") && strings.Contains(s, " ") && len(s) > 10
}

const maxRelatedQuestions = 10
