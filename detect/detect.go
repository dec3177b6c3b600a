// Package detect classifies loaded pages as clean or as one of the known
// bot-challenge walls. Classification is a pure function of the already
// rendered page: it never navigates and has no side effects, so false
// negatives surface downstream as empty parses rather than hard errors.
package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Classification is the outcome of inspecting a loaded page.
type Classification int

const (
	// Clean means no challenge marker was found; extraction may proceed.
	Clean Classification = iota

	// Captcha means the page is an interactive human-verification wall.
	Captcha

	// RateLimited means the target answered with a throttling page.
	RateLimited

	// Blocked means access was denied outright (no challenge to pass).
	Blocked
)

func (c Classification) String() string {
	switch c {
	case Clean:
		return "clean"
	case Captcha:
		return "captcha"
	case RateLimited:
		return "rate_limited"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Markers that indicate an interactive verification wall. Matched against the
// lowercased visible text.
var captchaTextMarkers = []string{
	"unusual traffic from your computer network",
	"our systems have detected unusual traffic",
	"verify you are human",
	"i'm not a robot",
	"complete the security check",
	"enable javascript and cookies to continue",
}

// CSS selectors whose presence means a challenge widget is mounted.
var captchaSelectors = []string{
	"form#captcha-form",
	"iframe[src*='recaptcha']",
	"iframe[src*='hcaptcha']",
	"#challenge-running",
	"#challenge-stage",
	"div.cf-turnstile",
}

var rateLimitTextMarkers = []string{
	"too many requests",
	"429 too many requests",
	"you have sent too many requests",
	"rate limit exceeded",
}

var blockedTextMarkers = []string{
	"access denied",
	"has been blocked",
	"403 forbidden",
	"your access to this site has been limited",
}

// Redirect targets that are challenge interstitials regardless of content.
var challengeURLFragments = []string{
	"google.com/sorry",
	"/sorry/index",
	"ipv4.google.com/sorry",
}

// Classify inspects a loaded page and its post-redirect URL and returns the
// challenge classification. The order matters: an explicit challenge redirect
// or widget outranks text heuristics, and rate limiting is checked before the
// generic blocked markers because throttling pages often also say "denied".
func Classify(doc *goquery.Document, finalURL string) Classification {
	lowerURL := strings.ToLower(finalURL)
	for _, frag := range challengeURLFragments {
		if strings.Contains(lowerURL, frag) {
			return Captcha
		}
	}

	for _, sel := range captchaSelectors {
		if doc.Find(sel).Length() > 0 {
			return Captcha
		}
	}

	text := strings.ToLower(doc.Find("body").Text())
	title := strings.ToLower(doc.Find("title").First().Text())

	for _, m := range captchaTextMarkers {
		if strings.Contains(text, m) || strings.Contains(title, m) {
			return Captcha
		}
	}
	for _, m := range rateLimitTextMarkers {
		if strings.Contains(text, m) || strings.Contains(title, m) {
			return RateLimited
		}
	}
	for _, m := range blockedTextMarkers {
		if strings.Contains(title, m) {
			return Blocked
		}
	}
	// Body-text blocked markers only count on near-empty pages; a normal
	// article may legitimately contain the phrase "access denied".
	if len(strings.TrimSpace(text)) < 600 {
		for _, m := range blockedTextMarkers {
			if strings.Contains(text, m) {
				return Blocked
			}
		}
	}

	return Clean
}

// FromHTML is a convenience wrapper that parses raw HTML before classifying.
// Unparseable input classifies as Blocked: a page the DOM engine cannot
// represent is never extractable.
func FromHTML(rawHTML, finalURL string) Classification {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return Blocked
	}
	return Classify(doc, finalURL)
}
