package chat

import (
	"github.com/harun/aoichat/pkg/completion"
)

// Transcript is the ordered, append-only chat history of one session.
// It is owned by the session loop and is not safe for concurrent use.
type Transcript struct {
	turns []completion.Message
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{}
}

// AddUser appends a user turn
func (t *Transcript) AddUser(content string) {
	t.turns = append(t.turns, completion.Message{Role: completion.RoleUser, Content: content})
}

// AddAssistant appends an assistant turn
func (t *Transcript) AddAssistant(content string) {
	t.turns = append(t.turns, completion.Message{Role: completion.RoleAssistant, Content: content})
}

// Len returns the number of turns
func (t *Transcript) Len() int {
	return len(t.turns)
}

// Snapshot returns a copy of the turns in chronological order
func (t *Transcript) Snapshot() []completion.Message {
	out := make([]completion.Message, len(t.turns))
	copy(out, t.turns)
	return out
}
