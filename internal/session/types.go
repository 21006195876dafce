package session

import (
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// DefaultHistoryLimit is the maximum number of messages a session keeps.
// Each turn contributes two messages, the user's and the assistant's.
const DefaultHistoryLimit = 20

// History is a bounded conversation history. Once the message count exceeds
// the limit, the oldest messages are discarded so only the most recent window
// survives.
//
// History is safe for concurrent use, though each session owns exactly one
// and accesses it from a single goroutine.
type History struct {
	mu       sync.RWMutex
	messages []*ai.Message
	limit    int // in messages
}

// NewHistory creates an empty History capped at limit messages.
// A non-positive limit falls back to DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Add appends one turn and trims the window to the configured limit.
func (h *History) Add(userInput, assistantResponse string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages,
		ai.NewUserMessage(ai.NewTextPart(userInput)),
		ai.NewModelMessage(ai.NewTextPart(assistantResponse)),
	)

	if len(h.messages) > h.limit {
		h.messages = h.messages[len(h.messages)-h.limit:]
	}
}

// Messages returns a copy of the message window in chronological order.
func (h *History) Messages() []*ai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*ai.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages currently in the window.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear discards all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}
