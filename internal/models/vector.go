// Package models defines core data structures for vector items, reference logs, and context windows.
package models

// VectorItem is a single entry of a vector index.
type VectorItem struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector"`
	Tokens int       `json:"tokens"`
	Scope  string    `json:"scope,omitempty"`
	// Magnitude caches the Euclidean norm of Vector. It is never persisted.
	Magnitude float64 `json:"-"`
}

// QueryResult is a single ranked hit returned by a vector query.
type QueryResult struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Tokens int     `json:"tokens"`
	Scope  string  `json:"scope,omitempty"`
}

// QueryResponse is the response for a multi-scope query.
type QueryResponse struct {
	Results   []QueryResult `json:"results"`
	Total     int           `json:"total"`
	QueryTime int64         `json:"query_time_ms"`
	Scopes    []string      `json:"scopes"`
}
