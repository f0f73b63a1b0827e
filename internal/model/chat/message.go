package chat

import "strings"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Source is a web citation reported alongside a grounded answer.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is a single turn in a conversation. Timestamp is unix milliseconds.
type Message struct {
	Sender    Sender   `json:"sender"`
	Text      string   `json:"text"`
	Timestamp int64    `json:"timestamp"`
	Sources   []Source `json:"sources,omitempty"`
}

// IsBlank reports whether the message carries no text worth sending upstream.
func (m Message) IsBlank() bool {
	return strings.TrimSpace(m.Text) == ""
}

// CloneMessages deep-copies a conversation so callers never share backing arrays.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		if msg.Sources != nil {
			out[i].Sources = append([]Source(nil), msg.Sources...)
		}
	}
	return out
}
