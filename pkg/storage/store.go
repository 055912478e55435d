// Package storage defines the persistence contract for conversation turns.
package storage

import (
	"context"

	"github.com/marketstead/chatstream/pkg/llm"
)

// Store is the durable home for conversation turns, keyed by user and agent
// topic. Writes from the chat engine are fire-and-forget: the streaming
// path never blocks on them, and failures are logged rather than surfaced.
type Store interface {
	// SaveTurn appends a turn to the conversation identified by ref.
	SaveTurn(ctx context.Context, ref llm.ConversationRef, turn llm.Turn) error

	// LoadHistory returns up to limit of the most recent turns in ascending
	// chronological order. A limit of zero or less means no limit. An
	// unknown conversation yields an empty slice, not an error.
	LoadHistory(ctx context.Context, ref llm.ConversationRef, limit int) ([]llm.Turn, error)

	// Close releases the store's resources.
	Close() error
}
