package detect

import (
	"strings"
	"testing"
)

func TestClassify_CleanResultsPage(t *testing.T) {
	html := `<html><head><title>best pizza - Search</title></head><body>
		<div class="g"><a href="http://example.com"><h3>Best Pizza Places</h3></a>
		<span>A long snippet about pizza restaurants in the city with plenty of text
		so the page does not look like an empty interstitial at all.</span></div>
	</body></html>`

	if got := FromHTML(html, "https://www.google.com/search?q=best+pizza"); got != Clean {
		t.Errorf("expected Clean, got %s", got)
	}
}

func TestClassify_SorryRedirect(t *testing.T) {
	// Google's challenge interstitial redirects to /sorry/ regardless of the
	// page body, so the URL alone must classify as Captcha.
	if got := FromHTML("<html><body></body></html>", "https://www.google.com/sorry/index?continue=x"); got != Captcha {
		t.Errorf("expected Captcha for /sorry/ redirect, got %s", got)
	}
}

func TestClassify_RecaptchaWidget(t *testing.T) {
	html := `<html><body><form id="captcha-form" action="index">
		<iframe src="https://www.google.com/recaptcha/api2/anchor"></iframe>
	</form></body></html>`

	if got := FromHTML(html, "https://www.google.com/search?q=x"); got != Captcha {
		t.Errorf("expected Captcha, got %s", got)
	}
}

func TestClassify_UnusualTrafficText(t *testing.T) {
	html := `<html><body><p>Our systems have detected unusual traffic from your
		computer network. Please try again later.</p></body></html>`

	if got := FromHTML(html, "https://www.google.com/search?q=x"); got != Captcha {
		t.Errorf("expected Captcha, got %s", got)
	}
}

func TestClassify_RateLimited(t *testing.T) {
	html := `<html><head><title>429 Too Many Requests</title></head>
		<body>You have sent too many requests in a given amount of time.</body></html>`

	if got := FromHTML(html, "https://www.bing.com/search?q=x"); got != RateLimited {
		t.Errorf("expected RateLimited, got %s", got)
	}
}

func TestClassify_Blocked(t *testing.T) {
	html := `<html><head><title>Access Denied</title></head>
		<body>You don't have permission to access this resource.</body></html>`

	if got := FromHTML(html, "https://example.com/"); got != Blocked {
		t.Errorf("expected Blocked, got %s", got)
	}
}

func TestClassify_BlockedPhraseInLongArticleIsClean(t *testing.T) {
	// An article that merely mentions "access denied" must not classify as
	// Blocked when the page carries substantial real content.
	var b strings.Builder
	b.WriteString(`<html><head><title>Debugging HTTP errors</title></head><body>`)
	b.WriteString(`<p>When a server returns access denied, check credentials.</p>`)
	for i := 0; i < 30; i++ {
		b.WriteString(`<p>Plenty of ordinary article text that pads the page well past the interstitial size threshold.</p>`)
	}
	b.WriteString(`</body></html>`)

	if got := FromHTML(b.String(), "https://example.com/article"); got != Clean {
		t.Errorf("expected Clean, got %s", got)
	}
}

func TestClassify_UnparseableIsBlocked(t *testing.T) {
	// goquery parses almost anything; the behavior contract is simply that
	// FromHTML never panics and garbage without markers stays Clean.
	if got := FromHTML("\x00\x01garbage", "https://example.com"); got != Clean && got != Blocked {
		t.Errorf("unexpected classification %s", got)
	}
}

func TestClassificationString(t *testing.T) {
	tests := []struct {
		c    Classification
		want string
	}{
		{Clean, "clean"},
		{Captcha, "captcha"},
		{RateLimited, "rate_limited"},
		{Blocked, "blocked"},
		{Classification(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
