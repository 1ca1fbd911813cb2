// Package storage defines the key/value persistence contract used by vector indices and
// reference logs, and the resource store used to hydrate conversation content.
package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// ErrNotFound is returned when a key or resource does not exist.
var ErrNotFound = errors.New("not found")

// Store is a key/value store. Keys ending in ".jsonl" hold one JSON record per line,
// keys ending in ".json" hold a single object.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get returns the raw content of key.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetRecords parses a line-delimited JSON key into one raw message per record.
	GetRecords(ctx context.Context, key string) ([]json.RawMessage, error)
	// GetObject decodes a ".json" key into v.
	GetObject(ctx context.Context, key string, v any) error
	// Put replaces the content of key.
	Put(ctx context.Context, key string, content []byte) error
	// Append adds content to the end of key, creating it if needed.
	Append(ctx context.Context, key string, content []byte) error
}

// Resources resolves conversation resources by ID.
type Resources interface {
	Conversation(ctx context.Context, id string) (*models.Conversation, error)
	Agent(ctx context.Context, id string) (*models.Agent, error)
	ToolFunction(ctx context.Context, id string) (*models.ToolFunction, error)
	// Messages hydrates identifiers of a conversation; the result follows the input order.
	Messages(ctx context.Context, conversationID string, ids []models.Identifier) ([]models.Message, error)
	// Describe returns the text of stored experiences, keyed by ID.
	Describe(ctx context.Context, ids []string) (map[string]string, error)
}
