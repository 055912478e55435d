// Package llm contains the provider-agnostic conversation types and the
// streaming chunk parser shared by the chat engine, storage drivers, and
// the API surface.
package llm

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation. The transcript holds an
// ordered, append-only sequence of turns; only the most recent assistant
// turn is mutable while a stream is in flight.
type Turn struct {
	Role Role `json:"role"`

	// Text is the message content. For an assistant turn mid-stream this
	// grows monotonically as deltas arrive.
	Text string `json:"text"`

	// ImageRef is an optional opaque URI to an attached image. The engine
	// never dereferences it.
	ImageRef string `json:"image_ref,omitempty"`
}

// NewUserTurn creates a user turn with optional image attachment.
func NewUserTurn(text, imageRef string) Turn {
	return Turn{Role: RoleUser, Text: text, ImageRef: imageRef}
}

// NewAssistantTurn creates an empty assistant turn, the placeholder that
// deltas are appended to while streaming.
func NewAssistantTurn() Turn {
	return Turn{Role: RoleAssistant}
}

// ConversationRef identifies a conversation by its owning user and agent
// topic. Identity is supplied by the caller (ultimately the persistence
// layer), never generated here.
type ConversationRef struct {
	UserID string `json:"user_id"`
	Topic  string `json:"topic"`
}
