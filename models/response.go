package models

// SearchResponse is the response for POST /api/v1/search.
type SearchResponse struct {
	Success bool `json:"success"`

	// Engine is the engine that actually served the results (post-fallback).
	Engine           Engine            `json:"engine,omitempty"`
	OrganicResults   []OrganicResult   `json:"organic_results,omitempty"`
	RelatedQuestions []RelatedQuestion `json:"related_questions,omitempty"`
	KnowledgeGraph   *KnowledgeGraph   `json:"knowledge_graph,omitempty"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// ScrapeResponse is the response for POST /api/v1/scrape.
type ScrapeResponse struct {
	Success bool `json:"success"`

	Content *ScrapedContent `json:"content,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds, queue wait included.
	TotalMs int64 `json:"total_ms"`

	// SessionMs is the time spent holding the browser session.
	SessionMs int64 `json:"session_ms,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string `json:"status"` // "healthy" or "degraded"
	SessionAlive bool   `json:"session_alive"`
	Uptime       string `json:"uptime"`
	Version      string `json:"version"`
}
