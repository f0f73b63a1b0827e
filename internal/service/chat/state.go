package chat

import (
	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

// State is the conversation owned by the controller for the selected persona.
type State struct {
	PersonaID       string         `json:"personaId"`
	Messages        []chat.Message `json:"messages"`
	Streaming       bool           `json:"isStreaming"`
	Error           string         `json:"error,omitempty"`
	Dirty           bool           `json:"isDirty"`
	ActiveSessionID string         `json:"activeSessionId,omitempty"`

	// Generation identifies the current turn. Stream actions tagged with an older generation
	// are dropped, which is how cancelled streams are silenced.
	Generation uint64 `json:"generation"`
	// Revision increases on every content change.
	Revision uint64 `json:"revision"`
	// FailedInput holds the text of a turn that was rolled back, for RetryLast.
	FailedInput string `json:"-"`

	checkpoint checkpoint
}

// checkpoint is what a failed turn restores.
type checkpoint struct {
	length          int
	dirty           bool
	activeSessionID string
}

// Clone returns a copy that shares nothing mutable with s.
func (s State) Clone() State {
	s.Messages = chat.CloneMessages(s.Messages)
	return s
}

// Action is a named state transition.
type Action interface {
	isAction()
}

// Reset replaces the conversation with a single greeting.
type Reset struct {
	PersonaID string
	Greeting  chat.Message
}

// BeginTurn appends the user message and the empty AI placeholder.
type BeginTurn struct {
	User        chat.Message
	Placeholder chat.Message
}

// AppendDelta extends the trailing AI message.
type AppendDelta struct {
	Generation uint64
	Text       string
}

// FinishTurn ends a stream normally and attaches the citations it reported.
type FinishTurn struct {
	Generation uint64
	Sources    []chat.Source
}

// FailTurn rolls the turn back and records the error text.
type FailTurn struct {
	Generation uint64
	Err        string
	Input      string
}

// CancelTurn stops a stream and keeps whatever text was already applied.
type CancelTurn struct {
	Generation uint64
}

// Truncate keeps the first N messages.
type Truncate struct {
	N int
}

// DismissError clears the error banner.
type DismissError struct{}

// MarkSaved clears Dirty when the saved snapshot is still the current content. A non-empty
// SessionID becomes the active session.
type MarkSaved struct {
	Revision  uint64
	SessionID string
}

// LoadSession replaces the conversation with a stored session.
type LoadSession struct {
	SessionID string
	Messages  []chat.Message
}

func (Reset) isAction()        {}
func (BeginTurn) isAction()    {}
func (AppendDelta) isAction()  {}
func (FinishTurn) isAction()   {}
func (FailTurn) isAction()     {}
func (CancelTurn) isAction()   {}
func (Truncate) isAction()     {}
func (DismissError) isAction() {}
func (MarkSaved) isAction()    {}
func (LoadSession) isAction()  {}

// Reduce applies action to s and returns the next state. It never mutates the slices of s.
func Reduce(s State, action Action) State {
	switch a := action.(type) {
	case Reset:
		return State{
			PersonaID:  a.PersonaID,
			Messages:   []chat.Message{a.Greeting},
			Generation: s.Generation + 1,
			Revision:   s.Revision + 1,
		}

	case BeginTurn:
		s.checkpoint = checkpoint{
			length:          len(s.Messages),
			dirty:           s.Dirty,
			activeSessionID: s.ActiveSessionID,
		}
		messages := make([]chat.Message, 0, len(s.Messages)+2)
		messages = append(messages, s.Messages...)
		s.Messages = append(messages, a.User, a.Placeholder)
		s.Streaming = true
		s.Error = ""
		s.Dirty = true
		s.ActiveSessionID = ""
		s.FailedInput = ""
		s.Generation++
		s.Revision++
		return s

	case AppendDelta:
		if !s.current(a.Generation) || len(s.Messages) == 0 || a.Text == "" {
			return s
		}
		messages := chat.CloneMessages(s.Messages)
		messages[len(messages)-1].Text += a.Text
		s.Messages = messages
		s.Revision++
		return s

	case FinishTurn:
		if !s.current(a.Generation) {
			return s
		}
		s.Streaming = false
		if len(a.Sources) > 0 && len(s.Messages) > 0 {
			messages := chat.CloneMessages(s.Messages)
			last := &messages[len(messages)-1]
			last.Sources = append([]chat.Source(nil), a.Sources...)
			s.Messages = messages
			s.Revision++
		}
		return s

	case FailTurn:
		if !s.current(a.Generation) {
			return s
		}
		if n := s.checkpoint.length; n > 0 && n <= len(s.Messages) {
			s.Messages = append([]chat.Message(nil), s.Messages[:n]...)
		}
		s.Dirty = s.checkpoint.dirty
		s.ActiveSessionID = s.checkpoint.activeSessionID
		s.Streaming = false
		s.Error = a.Err
		s.FailedInput = a.Input
		s.Revision++
		return s

	case CancelTurn:
		if !s.current(a.Generation) {
			return s
		}
		s.Streaming = false
		// an untouched placeholder is not worth keeping
		if n := len(s.Messages); n > 0 && s.Messages[n-1].Sender == chat.SenderAI && s.Messages[n-1].IsBlank() {
			s.Messages = append([]chat.Message(nil), s.Messages[:n-1]...)
			s.Revision++
		}
		return s

	case Truncate:
		// the opening AI message is never cut
		if a.N < 1 || a.N >= len(s.Messages) {
			return s
		}
		s.Messages = append([]chat.Message(nil), s.Messages[:a.N]...)
		s.Dirty = true
		s.ActiveSessionID = ""
		s.Revision++
		return s

	case DismissError:
		s.Error = ""
		return s

	case MarkSaved:
		if a.Revision != s.Revision {
			return s
		}
		s.Dirty = false
		if a.SessionID != "" {
			s.ActiveSessionID = a.SessionID
		}
		return s

	case LoadSession:
		return State{
			PersonaID:       s.PersonaID,
			Messages:        chat.CloneMessages(a.Messages),
			ActiveSessionID: a.SessionID,
			Generation:      s.Generation + 1,
			Revision:        s.Revision + 1,
		}
	}
	return s
}

func (s State) current(generation uint64) bool {
	return s.Streaming && s.Generation == generation
}
