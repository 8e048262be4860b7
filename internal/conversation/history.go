package conversation

import (
	"context"
)

// History reads bounded slices of past messages for prompt assembly.
type History struct {
	pool Querier
}

// NewHistory creates a history provider over the same pool as the store.
func NewHistory(pool Querier) *History {
	if pool == nil {
		panic("conversation: pgx querier required")
	}
	return &History{pool: pool}
}

// RecentHistory returns at most limit of the newest messages, ordered
// chronologically ascending so the prompt reads as a transcript. The rows are
// fetched newest-first and reversed; an empty conversation yields an empty
// slice.
func (h *History) RecentHistory(ctx context.Context, conversationID int64, limit int) ([]TranscriptEntry, error) {
	if limit <= 0 {
		return []TranscriptEntry{}, nil
	}

	rows, err := h.pool.Query(ctx, `
		SELECT sender, body FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, storeErr("query history", err)
	}
	defer rows.Close()

	var newestFirst []TranscriptEntry
	for rows.Next() {
		var entry TranscriptEntry
		if err := rows.Scan(&entry.Sender, &entry.Text); err != nil {
			return nil, storeErr("scan history row", err)
		}
		newestFirst = append(newestFirst, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read history rows", err)
	}

	ascending := make([]TranscriptEntry, len(newestFirst))
	for i, entry := range newestFirst {
		ascending[len(newestFirst)-1-i] = entry
	}
	return ascending, nil
}
