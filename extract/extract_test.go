package extract

import (
	"reflect"
	"strings"
	"testing"
)

const articleFixture = `<html><head>
<title>Understanding Browsers</title>
<meta name="description" content="A short guide to browser internals.">
</head><body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article>
<p>Browsers parse HTML into a document object model before anything renders,
which is why malformed markup still displays: the parser repairs it.</p>
<p>Rendering engines then compute styles and layout for every node in the
tree, a process that dominates page-load time on complex documents.</p>
<p>   </p>
<p>short</p>
</article>
<footer>Copyright notice that should never appear in extracted content.</footer>
<script>console.log("tracking");</script>
</body></html>`

func TestFromHTML_Article(t *testing.T) {
	c, err := FromHTML(articleFixture, "https://example.com/browsers")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}

	if c.URL != "https://example.com/browsers" {
		t.Errorf("url = %q", c.URL)
	}
	if !strings.Contains(c.Title, "Understanding Browsers") {
		t.Errorf("title = %q", c.Title)
	}
	if c.MetaDescription != "A short guide to browser internals." {
		t.Errorf("meta_description = %q", c.MetaDescription)
	}
	if len(c.Content) < 2 {
		t.Fatalf("expected at least 2 paragraphs, got %d: %v", len(c.Content), c.Content)
	}
	if !strings.HasPrefix(c.Content[0], "Browsers parse HTML") {
		t.Errorf("paragraph order not preserved, first = %q", c.Content[0])
	}
	for _, p := range c.Content {
		if strings.TrimSpace(p) == "" {
			t.Error("empty paragraph leaked into content")
		}
		if strings.Contains(p, "Copyright notice") {
			t.Errorf("footer leaked into content: %q", p)
		}
		if strings.Contains(p, "console.log") {
			t.Errorf("script leaked into content: %q", p)
		}
	}
	if c.ExtractedAt.IsZero() {
		t.Error("extracted_at not assigned")
	}
}

func TestFromHTML_WordCountRecomputable(t *testing.T) {
	c, err := FromHTML(articleFixture, "https://example.com/browsers")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	if got := WordCount(c.Content); got != c.WordCount {
		t.Errorf("word_count = %d, recomputed = %d", c.WordCount, got)
	}
}

func TestFromHTML_EmptyPage(t *testing.T) {
	c, err := FromHTML("<html><head><title>Empty</title></head><body></body></html>", "https://example.com")
	if err != nil {
		t.Fatalf("empty page must not error: %v", err)
	}
	if len(c.Content) != 0 {
		t.Errorf("content = %v, want empty", c.Content)
	}
	if c.WordCount != 0 {
		t.Errorf("word_count = %d, want 0", c.WordCount)
	}
}

func TestFromHTML_NoParagraphElements(t *testing.T) {
	html := `<html><body><div>inline text only, no block paragraphs here</div></body></html>`
	c, err := FromHTML(html, "https://example.com")
	if err != nil {
		t.Fatalf("sparse page must not error: %v", err)
	}
	if WordCount(c.Content) != c.WordCount {
		t.Errorf("word_count invariant broken on sparse page")
	}
}

func TestFromHTML_Idempotent(t *testing.T) {
	a, err := FromHTML(articleFixture, "https://example.com/browsers")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	b, err := FromHTML(articleFixture, "https://example.com/browsers")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}

	if a.Title != b.Title {
		t.Errorf("title not idempotent: %q vs %q", a.Title, b.Title)
	}
	if a.MetaDescription != b.MetaDescription {
		t.Errorf("meta_description not idempotent")
	}
	if !reflect.DeepEqual(a.Content, b.Content) {
		t.Errorf("content not idempotent:\n%v\nvs\n%v", a.Content, b.Content)
	}
}

func TestFromHTML_ShortParagraphFallback(t *testing.T) {
	// All paragraphs below the container-pass noise floor; the all-paragraph
	// fallback must still pick up the non-empty ones.
	html := `<html><body><p>tiny one</p><p>   </p><p>tiny two</p></body></html>`
	c, err := FromHTML(html, "https://example.com")
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	for _, p := range c.Content {
		if strings.TrimSpace(p) == "" {
			t.Error("whitespace-only paragraph survived")
		}
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want int
	}{
		{"empty list", nil, 0},
		{"single", []string{"three little words"}, 3},
		{"multiple", []string{"one two", "three four five"}, 5},
		{"extra whitespace", []string{"  spaced   out  tokens  "}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordCount(tt.in); got != tt.want {
				t.Errorf("WordCount = %d, want %d", got, tt.want)
			}
		})
	}
}
