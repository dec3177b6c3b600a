package serp

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/lookout/models"
)

// Bing drives Bing web search. Bing's markup is far more stable than
// Google's, but result links are wrapped in /ck/a click-tracking redirects
// that must be decoded back to the real target.
type Bing struct{}

func (Bing) Engine() models.Engine { return models.EngineBing }

func (Bing) HomeURL() string { return "https://www.bing.com" }

func (Bing) BoxSelector() string { return `input[name="q"], textarea[name="q"]` }

func (Bing) SearchURL(query string, num int) string {
	if num > 20 {
		num = 20
	}
	// setlang + cc enforce English results; avoids mixed-language pages.
	return fmt.Sprintf("https://www.bing.com/search?q=%s&count=%d&mkt=en-US&setlang=en-US&cc=US&first=1",
		url.QueryEscape(query), num)
}

var (
	bingContainers         = cascadia.MustCompile(".b_algo")
	bingFallbackContainers = cascadia.MustCompile("#b_results > li")
)

var bingSnippetSelectors = []string{".b_caption p", ".b_paractl", ".b_algoSlug", "p"}

func (b Bing) Parse(doc *goquery.Document, num int) *models.SearchResultSet {
	return &models.SearchResultSet{
		Engine:           models.EngineBing,
		OrganicResults:   parseBingOrganic(doc, num),
		RelatedQuestions: parseBingQuestions(doc),
		KnowledgeGraph:   parseBingKnowledge(doc),
	}
}

func parseBingOrganic(doc *goquery.Document, limit int) []models.OrganicResult {
	results := []models.OrganicResult{}
	seen := map[string]struct{}{}

	containers := doc.FindMatcher(bingContainers)
	if containers.Length() == 0 {
		containers = doc.FindMatcher(bingFallbackContainers)
	}

	containers.EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		a := c.Find("h2 a").First()
		if a.Length() == 0 {
			a = c.Find(`a[href^="http"]`).First()
		}
		if a.Length() == 0 {
			return true
		}
		title := cleanText(a.Text())
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") || title == "" {
			return true
		}

		if strings.Contains(href, "bing.com/ck/a") {
			if real := DecodeBingRedirect(href); real != "" {
				href = real
			}
		}
		if skipHost(href, []string{"bing.com", "microsoft.com/en-us/bing"}) {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}

		var snippet string
		for _, ss := range bingSnippetSelectors {
			if se := c.Find(ss).First(); se.Length() > 0 {
				snippet = cleanText(se.Text())
				break
			}
		}

		seen[href] = struct{}{}
		results = append(results, models.OrganicResult{
			Position:      len(results) + 1,
			Title:         title,
			Link:          href,
			Snippet:       capSnippet(snippet),
			DisplayedLink: displayedLink(href),
		})
		return true
	})
	return results
}

// Selectors containing real question sentences. Deliberately excludes .b_rs
// (related searches), which produce space-stripped word blobs.
var bingQuestionSelectors = []string{
	".df_alsoasked a",
	".b_ans .b_focusTextLarge",
	`[data-tag="RelatedSearches.PeopleAlsoAsk"] a`,
	".alsoAsk a",
	".b_paa a",
	".df_alsoask a",
}

func parseBingQuestions(doc *goquery.Document) []models.RelatedQuestion {
	out := []models.RelatedQuestion{}
	seen := map[string]struct{}{}
	for _, sel := range bingQuestionSelectors {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			t := cleanText(el.Text())
			if !looksLikeQuestion(t) {
				return
			}
			if _, dup := seen[t]; dup {
				return
			}
			seen[t] = struct{}{}
			out = append(out, models.RelatedQuestion{Question: t})
		})
	}
	if len(out) > maxRelatedQuestions {
		out = out[:maxRelatedQuestions]
	}
	return out
}

// Panel titles that are UI widgets, not knowledge-graph entities.
var bingJunkPanelTitles = map[string]struct{}{
	"searches you might like": {},
	"related searches":        {},
	"people also search for":  {},
	"explore further":         {},
}

func parseBingKnowledge(doc *goquery.Document) *models.KnowledgeGraph {
	var kg *models.KnowledgeGraph
	// The entity panel is the most specific; .b_ans is the broader answer box.
	for _, sel := range []string{".b_entityTP", ".b_ans"} {
		doc.Find(sel).EachWithBreak(func(_ int, box *goquery.Selection) bool {
			title := cleanText(box.Find(".b_entityTitle, h2").First().Text())
			desc := cleanText(box.Find(".b_entitySubTypes, .b_snippet, p").First().Text())
			if _, junk := bingJunkPanelTitles[strings.ToLower(title)]; junk {
				return true
			}
			if title == "" && desc == "" {
				return true
			}
			kg = &models.KnowledgeGraph{Title: title, Type: "answer_box", Description: desc}
			return false
		})
		if kg != nil {
			return kg
		}
	}
	return nil
}

// DecodeBingRedirect unwraps Bing /ck/a click-tracking URLs back to the real
// target. The target is carried base64url-encoded in the "u" parameter with
// an "a1" version prefix. Returns "" when the URL does not decode.
func DecodeBingRedirect(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	enc := u.Query().Get("u")
	if enc == "" {
		return ""
	}
	enc = strings.TrimPrefix(enc, "a1")
	// Restore stripped padding before decoding.
	if n := len(enc) % 4; n != 0 {
		enc += strings.Repeat("=", 4-n)
	}
	dec, err := base64.URLEncoding.DecodeString(enc)
	if err != nil {
		return ""
	}
	target := string(dec)
	if !strings.HasPrefix(target, "http") {
		return ""
	}
	return target
}
