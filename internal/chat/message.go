// Package chat defines the messages exchanged with a learner's chat client
// and the WebSocket channel that carries them.
package chat

import "context"

// Inbound actions. Each corresponds to a button or the answer box.
const (
	ActionLevel        = "level"
	ActionAnswer       = "answer"
	ActionExplain      = "explain"
	ActionNextQuestion = "next_question"
	ActionKeepLevel    = "keep_level"
	ActionChangeLevel  = "change_level"
	ActionEnd          = "end"
)

// Button is an action the learner can take on a message.
type Button struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

// Message is one chat bubble.
type Message struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	FromAI     bool     `json:"from_ai"`
	IsQuestion bool     `json:"is_question,omitempty"`
	Buttons    []Button `json:"buttons,omitempty"`
}

// InboundMessage is an action sent by the learner's client.
type InboundMessage struct {
	SessionID string `json:"session_id,omitempty"`
	Action    string `json:"action"`
	Value     string `json:"value,omitempty"` // level number or answer text
}

// Handler processes an inbound action and returns the replies to show.
type Handler func(ctx context.Context, msg InboundMessage) ([]Message, error)
