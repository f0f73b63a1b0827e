package chat

import (
	"context"
	"log"
	"time"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

// Autosave writes the conversation to the persona's autosave slot when it has unsaved
// content beyond the greeting. It reports whether a snapshot was written. Text of a running
// stream is saved as it stands.
func (c *Controller) Autosave(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed || !c.state.Dirty || len(c.state.Messages) <= 1 {
		c.mu.Unlock()
		return false, nil
	}
	personaID, revision := c.state.PersonaID, c.state.Revision
	messages := chat.CloneMessages(c.state.Messages)
	c.mu.Unlock()

	if err := c.sessions.Autosave(ctx, personaID, messages); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.PersonaID == personaID {
		c.dispatchLocked(UpdateSaved, "", MarkSaved{Revision: revision})
	}
	return true, nil
}

// RunAutosave calls Autosave every interval until ctx is done. Failures are logged and
// retried on the next tick.
func (c *Controller) RunAutosave(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := c.Autosave(ctx)
			if err != nil {
				log.Printf("[autosave] persona=%s failed: %v", c.Persona().ID, err)
				continue
			}
			if saved {
				log.Printf("[autosave] persona=%s snapshot written", c.Persona().ID)
			}
		}
	}
}
