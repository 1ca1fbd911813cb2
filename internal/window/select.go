package window

import (
	"fmt"

	"github.com/hyperjump/bunmyaku/internal/models"
)

// SelectHistory walks ids from newest to oldest and keeps items while the running total
// stays within budget. It stops at the first item that does not fit, even if older items
// are smaller, and returns the selection oldest first together with its token total.
func SelectHistory(ids []models.Identifier, budget int) ([]models.Identifier, int, error) {
	total := 0
	start := len(ids)
	for i := len(ids) - 1; i >= 0; i-- {
		n, ok := ids[i].TokenCount()
		if !ok {
			return nil, 0, fmt.Errorf("identifier %q: %w", ids[i].Name, ErrMissingTokens)
		}
		if n < 0 {
			return nil, 0, fmt.Errorf("identifier %q has negative tokens: %w", ids[i].Name, ErrMissingTokens)
		}
		if n > budget-total {
			break
		}
		total += n
		start = i
	}
	selected := make([]models.Identifier, len(ids)-start)
	copy(selected, ids[start:])
	return selected, total, nil
}

// StripDanglingToolResults drops tool results from the front of a chronological selection.
// A tool result is only valid right after the assistant call that produced it, and a budget
// cut can separate the two. It returns the remaining items and how many were dropped.
func StripDanglingToolResults(ids []models.Identifier) ([]models.Identifier, int) {
	n := 0
	for n < len(ids) && ids[n].IsToolResult() {
		n++
	}
	return ids[n:], n
}
