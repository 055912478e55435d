// Package eventstream defines transport-neutral events emitted after
// conversation turns are persisted, plus the Publisher contract for
// shipping them to a streaming backend.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketstead/chatstream/pkg/llm"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "chatstream.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload for a persisted turn.
type TurnPersistedEvent struct {
	SchemaVersion int                 `json:"schema_version"`
	EventType     string              `json:"event_type"`
	EventID       string              `json:"event_id"`
	EmittedAt     time.Time           `json:"emitted_at"`
	Conversation  llm.ConversationRef `json:"conversation"`
	Turn          llm.Turn            `json:"turn"`
}

// NewTurnPersistedEvent builds a v1 event for the given turn.
func NewTurnPersistedEvent(ref llm.ConversationRef, turn llm.Turn) *TurnPersistedEvent {
	return &TurnPersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeTurnPersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Conversation:  ref,
		Turn:          turn,
	}
}
