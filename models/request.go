package models

// SearchRequest is the payload for POST /api/v1/search.
type SearchRequest struct {
	// Query is the search query text. Required.
	Query string `json:"query" binding:"required"`

	// Engine selects the search engine. "google", "bing", or "all".
	// "all" (and absent) means Google first with Bing as fallback.
	Engine string `json:"engine,omitempty" binding:"omitempty,oneof=google bing all"`

	// Num is the requested number of organic results. Default: 10.
	// Engines cap their own pagination at 20.
	Num int `json:"num,omitempty" binding:"omitempty,min=1,max=20"`
}

// Defaults applies default values to unset fields.
func (r *SearchRequest) Defaults() {
	if r.Engine == "" {
		r.Engine = string(EngineAny)
	}
	if r.Num == 0 {
		r.Num = 10
	}
}

// ScrapeRequest is the payload for POST /api/v1/scrape.
type ScrapeRequest struct {
	// URL is the target page to scrape. Required.
	URL string `json:"url" binding:"required,url"`

	// MaxAge, in seconds, allows serving a cached result no older than this.
	// Zero disables cache lookup for the request.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}
