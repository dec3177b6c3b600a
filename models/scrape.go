package models

import "time"

// ScrapedContent is the typed outcome of extracting an arbitrary URL.
//
// Content holds non-empty paragraphs in document order. WordCount is always
// recomputable from Content (it has no independent source of truth), and
// ExtractedAt is assigned when extraction completes, not at request arrival.
type ScrapedContent struct {
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Content         []string  `json:"content"`
	MetaDescription string    `json:"meta_description"`
	WordCount       int       `json:"word_count"`
	ExtractedAt     time.Time `json:"extracted_at"`
}
