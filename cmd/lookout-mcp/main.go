// Command lookout-mcp exposes the lookout HTTP API as MCP tools over stdio,
// so agent runtimes can search the web and scrape pages through the managed
// browser session.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// searchRequest mirrors the lookout API request model.
type searchRequest struct {
	Query  string `json:"query"`
	Engine string `json:"engine,omitempty"`
	Num    int    `json:"num,omitempty"`
}

// searchResponse mirrors the lookout API response model.
type searchResponse struct {
	Success        bool   `json:"success"`
	Engine         string `json:"engine"`
	OrganicResults []struct {
		Position      int    `json:"position"`
		Title         string `json:"title"`
		Link          string `json:"link"`
		Snippet       string `json:"snippet"`
		DisplayedLink string `json:"displayed_link"`
	} `json:"organic_results"`
	RelatedQuestions []struct {
		Question string `json:"question"`
	} `json:"related_questions"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"knowledge_graph"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// scrapeRequest mirrors the lookout API request model.
type scrapeRequest struct {
	URL    string `json:"url"`
	MaxAge int    `json:"max_age,omitempty"`
}

// scrapeResponse mirrors the lookout API response model.
type scrapeResponse struct {
	Success bool `json:"success"`
	Content *struct {
		URL             string   `json:"url"`
		Title           string   `json:"title"`
		Content         []string `json:"content"`
		MetaDescription string   `json:"meta_description"`
		WordCount       int      `json:"word_count"`
	} `json:"content"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("LOOKOUT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LOOKOUT_API_KEY")

	s := server.NewMCPServer(
		"lookout",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	webSearchTool := mcp.NewTool("web_search",
		mcp.WithDescription("Search the web and return organic results, related questions, and the knowledge panel. Runs through a real browser session that handles bot challenges."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithString("engine",
			mcp.Description("Search engine: 'all' (default, Google with Bing fallback), 'google', or 'bing'"),
			mcp.Enum("all", "google", "bing"),
		),
		mcp.WithNumber("num",
			mcp.Description("Number of organic results to return (default: 10, max: 20)"),
		),
	)
	s.AddTool(webSearchTool, handleWebSearch(apiURL, apiKey))

	scrapeURLTool := mcp.NewTool("scrape_url",
		mcp.WithDescription("Scrape a web page and return its title, meta description, and main-content paragraphs. Uses a headless browser to render JavaScript-heavy pages."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the web page to scrape"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result no older than this many seconds (default: 0, always fresh)"),
		),
	)
	s.AddTool(scrapeURLTool, handleScrapeURL(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// intArg reads an optional numeric tool argument; JSON numbers arrive as
// float64.
func intArg(request mcp.CallToolRequest, key string) int {
	if v, ok := request.GetArguments()[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return 0
}

// apiPost sends a POST request to the lookout API and returns the body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleWebSearch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError("query is required"), nil
		}

		reqBody := searchRequest{
			Query:  query,
			Engine: request.GetString("engine", ""),
			Num:    intArg(request, "num"),
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/search", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sr searchResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !sr.Success {
			msg := "search failed"
			if sr.Error != nil {
				msg = fmt.Sprintf("search failed: %s: %s", sr.Error.Code, sr.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		return mcp.NewToolResultText(formatSearch(&sr)), nil
	}
}

// formatSearch renders a search response as readable text for the agent.
func formatSearch(sr *searchResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Engine: %s\n\n", sr.Engine)

	if sr.KnowledgeGraph != nil && sr.KnowledgeGraph.Title != "" {
		fmt.Fprintf(&b, "Knowledge panel: %s", sr.KnowledgeGraph.Title)
		if sr.KnowledgeGraph.Description != "" {
			fmt.Fprintf(&b, " — %s", sr.KnowledgeGraph.Description)
		}
		b.WriteString("\n\n")
	}

	for _, r := range sr.OrganicResults {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", r.Position, r.Title, r.Link)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
	}

	if len(sr.RelatedQuestions) > 0 {
		b.WriteString("\nPeople also ask:\n")
		for _, q := range sr.RelatedQuestions {
			fmt.Fprintf(&b, "- %s\n", q.Question)
		}
	}
	return b.String()
}

func handleScrapeURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		reqBody := scrapeRequest{
			URL:    url,
			MaxAge: intArg(request, "max_age"),
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/scrape", reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var sr scrapeResponse
		if err := json.Unmarshal(body, &sr); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !sr.Success || sr.Content == nil {
			msg := "scrape failed"
			if sr.Error != nil {
				msg = fmt.Sprintf("scrape failed: %s: %s", sr.Error.Code, sr.Error.Message)
			}
			return mcp.NewToolResultError(msg), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Title: %s\n", sr.Content.Title)
		if sr.Content.MetaDescription != "" {
			fmt.Fprintf(&b, "Description: %s\n", sr.Content.MetaDescription)
		}
		fmt.Fprintf(&b, "Words: %d\n\n", sr.Content.WordCount)
		for _, p := range sr.Content.Content {
			b.WriteString(p)
			b.WriteString("\n\n")
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}
