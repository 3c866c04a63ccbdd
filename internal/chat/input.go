package chat

import (
	"sync"
)

// InputBuffer is the pending input field. Voice transcripts are appended
// here, never injected into the transcript directly; they reach the
// conversation through the normal submit path.
type InputBuffer struct {
	mu   sync.Mutex
	text string
}

// Text returns the current pending input
func (b *InputBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Set replaces the pending input
func (b *InputBuffer) Set(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

// Clear empties the pending input, typically right after a submit
func (b *InputBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = ""
}

// AppendTranscript appends transcribed text to whatever is already pending,
// separated by a single space when the field was non-empty
func (b *InputBuffer) AppendTranscript(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.text == "" {
		b.text = text
		return
	}
	b.text = b.text + " " + text
}
