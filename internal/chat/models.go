package chat

import (
	"github.com/the-missionary-company/parley/internal/llm"
)

// Transcript is the ordered, append-only list of completed conversation
// turns for one session. Insertion order is chronological and is replayed
// verbatim as context on every request.
type Transcript struct {
	turns []llm.Message
}

// Append adds a completed turn
func (t *Transcript) Append(role llm.Role, content string) {
	t.turns = append(t.turns, llm.Message{Role: role, Content: content})
}

// Turns returns a snapshot copy of the transcript
func (t *Transcript) Turns() []llm.Message {
	out := make([]llm.Message, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	return len(t.turns)
}

// truncate drops turns beyond n, restoring a pre-request snapshot
func (t *Transcript) truncate(n int) {
	if n >= 0 && n < len(t.turns) {
		t.turns = t.turns[:n]
	}
}

// State is the consumer state machine position
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateDone
	StateError
	StateCancelled
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one submission
type Result struct {
	// Content is the assistant message as rendered: the concatenation, in
	// arrival order, of every delta received before the stream ended.
	Content string
	// State is the terminal state: StateDone or StateCancelled. Failed
	// submissions return an error instead.
	State State
}
