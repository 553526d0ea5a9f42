package models

import "time"

// Document is one ingested news item or paper. URL is the unique key.
type Document struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Source    string `json:"source"`
	Published string `json:"published,omitempty"`
	Body      string `json:"text,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// SearchResult is a ranked hit returned by the index.
type SearchResult struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Source  string   `json:"source"`
	Summary string   `json:"summary"`
	Score   float64  `json:"score"`
	Why     []string `json:"why"`
}

// DayCount is the number of documents published on one UTC day.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// SourceCount is the number of documents from one source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// TermCount is a weighted keyword frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// Trends aggregates a filtered subset of the corpus.
type Trends struct {
	Days        *int          `json:"days"`
	TotalItems  int           `json:"total_items"`
	ByDay       []DayCount    `json:"by_day"`
	TopSources  []SourceCount `json:"top_sources"`
	TopKeywords []TermCount   `json:"top_keywords"`
}

// Point is a coordinate in the 2D map.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// MapPoint places a document in the 2D map.
type MapPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Source    string  `json:"source"`
	Published string  `json:"published,omitempty"`
}

// MapResult holds map points and, for a query, its projected location.
type MapResult struct {
	Points     []MapPoint `json:"points"`
	QueryPoint *Point     `json:"query_point"`
}

// Stats describes the currently published index snapshot.
type Stats struct {
	TotalIndexed int       `json:"total_indexed"`
	Vocabulary   int       `json:"vocabulary"`
	Generation   string    `json:"generation,omitempty"`
	Scorer       string    `json:"scorer"`
	MapReady     bool      `json:"map_ready"`
	BuiltAt      time.Time `json:"built_at,omitempty"`
}
