package models

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is returned by QueryRequest.Validate.
var ErrInvalidQuery = errors.New("invalid query")

// QueryRequest is a similarity query against one or more scopes.
// Either Vector or Text must be set; Text is embedded by the server.
type QueryRequest struct {
	Vector    []float32 `json:"vector,omitempty"`
	Text      string    `json:"text,omitempty"`
	Scopes    []string  `json:"scopes,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	// Limit caps each scope before the merge.
	Limit int `json:"limit,omitempty"`
	// GlobalLimit truncates the merged list; zero keeps everything.
	GlobalLimit int `json:"global_limit,omitempty"`
}

// Validate checks the request and clamps limits.
// Negative limits are treated as "no limit".
func (q *QueryRequest) Validate() error {
	if len(q.Vector) == 0 && q.Text == "" {
		return fmt.Errorf("query requires a vector or text: %w", ErrInvalidQuery)
	}
	if q.Threshold < -1 || q.Threshold > 1 {
		return fmt.Errorf("threshold must be within [-1, 1], got %v: %w", q.Threshold, ErrInvalidQuery)
	}
	if q.Limit < 0 {
		q.Limit = 0
	}
	if q.GlobalLimit < 0 {
		q.GlobalLimit = 0
	}
	return nil
}
