// Package extract converts rendered page HTML into typed scraped content:
// title, meta description, ordered paragraphs, and a word count recomputable
// from the paragraph list.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/use-agent/lookout/models"
)

const (
	// maxParagraphs caps the content list; pages beyond this are boilerplate
	// or infinite feeds.
	maxParagraphs = 25

	// minBlockLen filters navigation crumbs and button labels out of the
	// container-selector passes. The all-paragraph fallback has no floor.
	minBlockLen = 50
)

// Content containers tried in order; document order is preserved within each.
var contentSelectors = []string{
	"article", "main", `[role="main"]`, ".content",
	".article-content", ".post-content", ".entry-content",
	".article-body", "p",
}

// Tags that never carry readable content.
const nonContentSelector = "script, style, nav, header, footer, aside, iframe, noscript"

var whitespaceRe = regexp.MustCompile(`\s+`)

var junkPhrases = []string{
	"Skip to main content",
	"Accept cookies",
	"Cookie notice",
	"Privacy policy",
}

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

// FromHTML runs the full extraction pipeline over rendered HTML.
//
// Stage 1 isolates the main article with go-readability; when it finds one,
// paragraph collection runs over the isolated content so sidebars and footers
// never leak in. Stage 2 segments paragraphs in document order, drops empty
// or whitespace-only blocks, and computes the word count from the final list.
//
// A sparse page is not an error: the result may carry an empty content list
// and word_count 0. The extraction timestamp is assigned here, at completion.
func FromHTML(rawHTML, sourceURL string) (*models.ScrapedContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, models.NewOpError(models.ErrCodeInternal, "failed to parse page HTML", err)
	}

	title := cleanText(doc.Find("title").First().Text())
	metaDesc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	metaDesc = cleanText(metaDesc)

	// Stage 1: main-content isolation.
	contentDoc := doc
	if article := readArticle(rawHTML, sourceURL); article != nil {
		if article.Title != "" {
			title = cleanText(article.Title)
		}
		if metaDesc == "" {
			metaDesc = cleanText(article.Excerpt)
		}
		if ad, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
			contentDoc = ad
		}
	}

	// Stage 2: paragraph segmentation.
	paragraphs := collectParagraphs(contentDoc)
	if len(paragraphs) == 0 && contentDoc != doc {
		// Readability can over-prune sparse pages; retry on the full document.
		paragraphs = collectParagraphs(doc)
	}

	return &models.ScrapedContent{
		URL:             sourceURL,
		Title:           title,
		Content:         paragraphs,
		MetaDescription: metaDesc,
		WordCount:       WordCount(paragraphs),
		ExtractedAt:     time.Now().UTC(),
	}, nil
}

// readArticle runs go-readability, returning nil when it fails or extracts
// nothing useful.
func readArticle(rawHTML, sourceURL string) *readability.Article {
	u, err := url.Parse(sourceURL)
	if err != nil {
		u = nil
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil || strings.TrimSpace(article.Content) == "" {
		return nil
	}
	return &article
}

// collectParagraphs walks the content selectors in order and returns cleaned
// text blocks in document order. When no container-level pass yields
// anything, every <p> with any text at all counts, so thin pages still
// produce well-formed (possibly empty) output.
func collectParagraphs(doc *goquery.Document) []string {
	work := doc.Clone()
	work.Find(nonContentSelector).Remove()

	blocks := []string{}
	seen := map[string]struct{}{}

	for _, sel := range contentSelectors {
		work.Find(sel).Each(func(_ int, el *goquery.Selection) {
			if len(blocks) >= maxParagraphs {
				return
			}
			text := cleanText(el.Text())
			if len(text) <= minBlockLen {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			blocks = append(blocks, text)
		})
	}

	if len(blocks) == 0 {
		work.Find("p").Each(func(_ int, p *goquery.Selection) {
			if len(blocks) >= maxParagraphs {
				return
			}
			text := cleanText(p.Text())
			if text == "" {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			blocks = append(blocks, text)
		})
	}

	if len(blocks) > maxParagraphs {
		blocks = blocks[:maxParagraphs]
	}
	return blocks
}

// WordCount returns the total whitespace-delimited token count across
// paragraphs. It is the single source of truth for ScrapedContent.WordCount.
func WordCount(paragraphs []string) int {
	total := 0
	for _, p := range paragraphs {
		total += len(strings.Fields(p))
	}
	return total
}
