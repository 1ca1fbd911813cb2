package window

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
)

// LogKey returns the default store key of a conversation's reference log.
func LogKey(conversationID string) string {
	return "conversations/" + conversationID + "/log.jsonl"
}

// referenceLog is the append-only, insertion-ordered identifier log of one conversation.
type referenceLog struct {
	store storage.Store
	key   string
}

// read returns the logged identifiers oldest first. A log that was never written is empty.
func (l *referenceLog) read(ctx context.Context) ([]models.Identifier, error) {
	records, err := l.store.GetRecords(ctx, l.key)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.Identifier{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reference log %s: %w", l.key, err)
	}
	ids := make([]models.Identifier, 0, len(records))
	for i, raw := range records {
		var rec models.LogRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("reference log %s record %d: %w", l.key, i+1, err)
		}
		ids = append(ids, rec.Identifier)
	}
	return ids, nil
}

// append writes one record per identifier in the order given, in a single store call.
func (l *referenceLog) append(ctx context.Context, ids []models.Identifier) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if err := enc.Encode(models.LogRecord{ID: uuid.NewString(), Identifier: id}); err != nil {
			return fmt.Errorf("encode identifier %s: %w", id.Name, err)
		}
	}
	if err := l.store.Append(ctx, l.key, buf.Bytes()); err != nil {
		return fmt.Errorf("append reference log %s: %w", l.key, err)
	}
	return nil
}
