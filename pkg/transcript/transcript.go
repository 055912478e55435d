// Package transcript owns the ordered turn sequence for a single
// conversation session. It is a single-writer/many-reader design: the chat
// engine is the only mutator, and the rendering layer observes mutations
// through subscriptions without owning the state.
package transcript

import (
	"errors"
	"sync"

	"github.com/marketstead/chatstream/pkg/llm"
)

var (
	// ErrTurnOpen is returned when a second assistant turn would be opened
	// while one is already streaming.
	ErrTurnOpen = errors.New("assistant turn already open")

	// ErrNoOpenTurn is returned when a delta or finalize arrives with no
	// open assistant turn.
	ErrNoOpenTurn = errors.New("no open assistant turn")
)

// Observer receives a snapshot of the turn sequence after every mutation.
// Notifications fire once per applied delta, unbatched, so a renderer can
// redraw at the granularity of individual network deltas.
type Observer func(turns []llm.Turn)

// Transcript is the mutable turn sequence for one conversation session.
// Turns are append-only; at most one assistant turn is open (mutable) at a
// time. Concurrent streams for the same transcript are a caller error — the
// open-turn invariant is enforced, not lock-arbitrated.
type Transcript struct {
	mu        sync.RWMutex
	turns     []llm.Turn
	open      bool
	observers []Observer
}

// New creates an empty transcript. Previously persisted history may be
// seeded with Append before streaming starts.
func New() *Transcript {
	return &Transcript{}
}

// Subscribe registers an observer for subsequent mutations.
func (t *Transcript) Subscribe(obs Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
}

// Append adds a completed, immutable turn (typically the user's message or
// a history turn loaded at conversation-open time).
func (t *Transcript) Append(turn llm.Turn) {
	t.mu.Lock()
	t.turns = append(t.turns, turn)
	snapshot := t.snapshotLocked()
	observers := t.observers
	t.mu.Unlock()

	notify(observers, snapshot)
}

// OpenAssistantTurn appends an empty assistant placeholder turn that
// subsequent deltas mutate in place.
func (t *Transcript) OpenAssistantTurn() error {
	t.mu.Lock()
	if t.open {
		t.mu.Unlock()
		return ErrTurnOpen
	}
	t.open = true
	t.turns = append(t.turns, llm.NewAssistantTurn())
	snapshot := t.snapshotLocked()
	observers := t.observers
	t.mu.Unlock()

	notify(observers, snapshot)
	return nil
}

// AppendDelta concatenates text onto the open assistant turn. All turns
// before the last are immutable during this operation.
func (t *Transcript) AppendDelta(text string) error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return ErrNoOpenTurn
	}
	t.turns[len(t.turns)-1].Text += text
	snapshot := t.snapshotLocked()
	observers := t.observers
	t.mu.Unlock()

	notify(observers, snapshot)
	return nil
}

// Finalize closes the open assistant turn and returns it for persistence.
// The turn stays in the transcript; it simply stops being mutable.
func (t *Transcript) Finalize() (llm.Turn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return llm.Turn{}, ErrNoOpenTurn
	}
	t.open = false
	return t.turns[len(t.turns)-1], nil
}

// Discard removes the open assistant turn, restoring the transcript to its
// pre-stream state. Used on failures where a half-formed turn must not stay
// visible.
func (t *Transcript) Discard() error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return ErrNoOpenTurn
	}
	t.open = false
	t.turns = t.turns[:len(t.turns)-1]
	snapshot := t.snapshotLocked()
	observers := t.observers
	t.mu.Unlock()

	notify(observers, snapshot)
	return nil
}

// Turns returns a copy of the current turn sequence.
func (t *Transcript) Turns() []llm.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Len returns the number of turns, including an open assistant turn.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

func (t *Transcript) snapshotLocked() []llm.Turn {
	snapshot := make([]llm.Turn, len(t.turns))
	copy(snapshot, t.turns)
	return snapshot
}

func notify(observers []Observer, snapshot []llm.Turn) {
	for _, obs := range observers {
		obs(snapshot)
	}
}
