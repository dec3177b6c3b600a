package models

// Engine identifies a supported search engine.
type Engine string

const (
	// EngineGoogle is Google web search.
	EngineGoogle Engine = "google"

	// EngineBing is Bing web search.
	EngineBing Engine = "bing"

	// EngineAny lets the coordinator pick: Google first, Bing as fallback.
	EngineAny Engine = "all"
)

// OrganicResult is one ranked search hit. Position is 1-based and contiguous
// within a result set.
type OrganicResult struct {
	Position      int    `json:"position"`
	Title         string `json:"title"`
	Link          string `json:"link"`
	Snippet       string `json:"snippet"`
	DisplayedLink string `json:"displayed_link"`
}

// RelatedQuestion is a "People Also Ask" style entry. Snippet and Link are
// best-effort and often empty.
type RelatedQuestion struct {
	Question string `json:"question"`
	Snippet  string `json:"snippet,omitempty"`
	Link     string `json:"link,omitempty"`
}

// KnowledgeGraph is the entity panel shown for well-known subjects.
// At most one per search; absent is a valid, non-error state.
type KnowledgeGraph struct {
	Title       string `json:"title,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// SearchResultSet is the full typed outcome of one search. Engine records
// which engine actually served the results, which may differ from the
// requested engine after fallback.
type SearchResultSet struct {
	Engine           Engine            `json:"engine"`
	OrganicResults   []OrganicResult   `json:"organic_results"`
	RelatedQuestions []RelatedQuestion `json:"related_questions"`
	KnowledgeGraph   *KnowledgeGraph   `json:"knowledge_graph,omitempty"`
}
