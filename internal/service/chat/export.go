package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

// Transcript is a downloadable plain-text rendering of a conversation.
type Transcript struct {
	Filename string
	Content  string
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Export renders the conversation. It does not change state.
func (c *Controller) Export() Transcript {
	c.mu.Lock()
	personaID := c.state.PersonaID
	messages := chat.CloneMessages(c.state.Messages)
	c.mu.Unlock()

	return Transcript{
		Filename: fmt.Sprintf("chat-%s-%d.txt", personaID, c.clock().UnixMilli()),
		Content:  FormatTranscript(messages),
	}
}

// FormatTranscript writes one block per message: "[<time>] <SENDER>:\n<text>\n\n".
func FormatTranscript(messages []chat.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		stamp := time.UnixMilli(msg.Timestamp).UTC().Format(isoMillis)
		fmt.Fprintf(&b, "[%s] %s:\n%s\n\n", stamp, strings.ToUpper(string(msg.Sender)), msg.Text)
	}
	return b.String()
}
