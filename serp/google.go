package serp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/lookout/models"
)

// Google drives Google web search. Google rotates its class names regularly,
// so parsing tries several selector generations in order and falls back to a
// raw anchor scan when none of them match.
type Google struct{}

func (Google) Engine() models.Engine { return models.EngineGoogle }

func (Google) HomeURL() string { return "https://www.google.com" }

func (Google) BoxSelector() string { return `textarea[name="q"], input[name="q"]` }

func (Google) SearchURL(query string, num int) string {
	if num > 20 {
		num = 20
	}
	return fmt.Sprintf("https://www.google.com/search?q=%s&num=%d&hl=en&gl=us",
		url.QueryEscape(query), num)
}

// googlePass is one selector generation: a container matcher plus the title
// and snippet selectors used inside each container.
type googlePass struct {
	containers cascadia.Selector
	title      string
	snippet    string
}

var googlePasses = []googlePass{
	{cascadia.MustCompile(".MjjYud, .g, .hlcw0c"), "h3, .LC20lb, .DKV0Md", ".VwiC3b, .s3v9rd, .aCOpRe"},
	{cascadia.MustCompile(".g, .rc"), "h3", ".s, .st"},
	{cascadia.MustCompile("[data-ved]"), "h3", "span"},
}

// Hosts that never count as organic results.
var googleSkipHosts = []string{"google.com/search", "accounts.google", "google.com/url"}

func (g Google) Parse(doc *goquery.Document, num int) *models.SearchResultSet {
	organic := parseGoogleOrganic(doc, num)
	return &models.SearchResultSet{
		Engine:           models.EngineGoogle,
		OrganicResults:   organic,
		RelatedQuestions: parseGoogleQuestions(doc),
		KnowledgeGraph:   parseGoogleKnowledge(doc),
	}
}

func parseGoogleOrganic(doc *goquery.Document, limit int) []models.OrganicResult {
	results := []models.OrganicResult{}
	seen := map[string]struct{}{}

	for _, pass := range googlePasses {
		doc.FindMatcher(pass.containers).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if len(results) >= limit {
				return false
			}
			te := c.Find(pass.title).First()
			if te.Length() == 0 {
				return true
			}
			title := cleanText(te.Text())
			if len(title) < 4 {
				return true
			}

			le := te.Closest("a")
			if le.Length() == 0 {
				le = c.Find(`a[href^="http"]`).First()
			}
			href, _ := le.Attr("href")
			if !strings.HasPrefix(href, "http") || skipHost(href, googleSkipHosts) {
				return true
			}
			if _, dup := seen[href]; dup {
				return true
			}

			snippet := cleanText(c.Find(pass.snippet).First().Text())

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
		if len(results) > 0 {
			break
		}
	}

	if len(results) == 0 {
		results = parseGoogleAnchors(doc, limit)
	}
	return results
}

// parseGoogleAnchors is the last-ditch pass: any http anchor wrapping (or
// adjacent to) an h3 counts, which survives full class-name rotations.
func parseGoogleAnchors(doc *goquery.Document, limit int) []models.OrganicResult {
	results := []models.OrganicResult{}
	seen := map[string]struct{}{}

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") ||
			skipHost(href, []string{"google.com", "accounts.google", "youtube.com/results"}) {
			return true
		}
		h3 := a.Find("h3").First()
		if h3.Length() == 0 {
			h3 = a.Parent().Find("h3").First()
		}
		if h3.Length() == 0 {
			return true
		}
		title := cleanText(h3.Text())
		if len(title) < 8 {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}
		seen[href] = struct{}{}
		results = append(results, models.OrganicResult{
			Position:      len(results) + 1,
			Title:         title,
			Link:          href,
			DisplayedLink: displayedLink(href),
		})
		return true
	})
	return results
}

var googleQuestionSelectors = []string{
	".related-question-pair span",
	".wQiwMc .iDjcJe",
	`[jsname="Cpkphb"] span`,
	".kno-ftr span",
}

func parseGoogleQuestions(doc *goquery.Document) []models.RelatedQuestion {
	out := []models.RelatedQuestion{}
	seen := map[string]struct{}{}
	for _, sel := range googleQuestionSelectors {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			t := cleanText(el.Text())
			if !strings.HasSuffix(t, "?") || len(t) <= 8 {
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

func parseGoogleKnowledge(doc *goquery.Document) *models.KnowledgeGraph {
	for _, sel := range []string{".kno-rdesc", ".I6TXqe", ".hgKElc"} {
		box := doc.Find(sel).First()
		if box.Length() == 0 {
			continue
		}
		title := cleanText(doc.Find(".qrShPb, .kno-ecr-pt, .SPZz6b").First().Text())
		desc := cleanText(box.Find("span, div").First().Text())
		if title != "" || desc != "" {
			return &models.KnowledgeGraph{
				Title:       title,
				Type:        "knowledge_graph",
				Description: desc,
			}
		}
	}
	return nil
}

func skipHost(href string, fragments []string) bool {
	lower := strings.ToLower(href)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
