package chat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
)

func greetingState() State {
	return Reduce(State{}, Reset{
		PersonaID: "code-wizard",
		Greeting:  chat.Message{Sender: chat.SenderAI, Text: "Hello! I'm Code Wizard. How can I help you today?"},
	})
}

func begin(s State, text string) State {
	return Reduce(s, BeginTurn{
		User:        chat.Message{Sender: chat.SenderUser, Text: text},
		Placeholder: chat.Message{Sender: chat.SenderAI},
	})
}

func TestReduceAppendDeltaTargetsTrailingMessage(t *testing.T) {
	s := begin(greetingState(), "write a loop")
	gen := s.Generation

	s = Reduce(s, AppendDelta{Generation: gen, Text: "function"})
	s = Reduce(s, AppendDelta{Generation: gen, Text: " loop() {}"})
	s = Reduce(s, FinishTurn{Generation: gen})

	require.Len(t, s.Messages, 3)
	require.Equal(t, "write a loop", s.Messages[1].Text)
	require.Equal(t, "function loop() {}", s.Messages[2].Text)
	require.False(t, s.Streaming)
}

func TestReduceIgnoresStaleGeneration(t *testing.T) {
	s := begin(greetingState(), "hi")
	stale := s.Generation - 1

	next := Reduce(s, AppendDelta{Generation: stale, Text: "late"})
	require.Equal(t, s, next)
	next = Reduce(s, FailTurn{Generation: stale, Err: "boom"})
	require.Equal(t, s, next)

	reset := Reduce(s, Reset{PersonaID: "creative-writer", Greeting: chat.Message{Sender: chat.SenderAI, Text: "hey"}})
	require.Equal(t, reset, Reduce(reset, AppendDelta{Generation: s.Generation, Text: "late"}))
	require.Equal(t, reset, Reduce(reset, CancelTurn{Generation: s.Generation}))
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := begin(greetingState(), "hi")
	snapshot := s.Clone()

	_ = Reduce(s, AppendDelta{Generation: s.Generation, Text: "delta"})
	_ = Reduce(s, FinishTurn{Generation: s.Generation, Sources: []chat.Source{{URI: "https://go.dev"}}})
	require.Equal(t, snapshot.Messages, s.Messages)
}

func TestReduceFailTurnRestoresCheckpoint(t *testing.T) {
	s := greetingState()
	s = Reduce(s, LoadSession{SessionID: "s1", Messages: []chat.Message{
		{Sender: chat.SenderAI, Text: "hello"},
		{Sender: chat.SenderUser, Text: "q"},
		{Sender: chat.SenderAI, Text: "a"},
	}})
	require.Equal(t, "s1", s.ActiveSessionID)

	s = begin(s, "follow-up")
	require.True(t, s.Dirty)
	require.Empty(t, s.ActiveSessionID)

	s = Reduce(s, AppendDelta{Generation: s.Generation, Text: "partial"})
	s = Reduce(s, FailTurn{Generation: s.Generation, Err: "Failed to get response: boom", Input: "follow-up"})

	require.Len(t, s.Messages, 3)
	require.False(t, s.Dirty)
	require.Equal(t, "s1", s.ActiveSessionID)
	require.Equal(t, "Failed to get response: boom", s.Error)
	require.Equal(t, "follow-up", s.FailedInput)
}

func TestReduceCancelTurnDropsUntouchedPlaceholder(t *testing.T) {
	s := begin(greetingState(), "hi")
	s = Reduce(s, CancelTurn{Generation: s.Generation})

	require.Len(t, s.Messages, 2)
	require.Equal(t, chat.SenderUser, s.Messages[1].Sender)
	require.False(t, s.Streaming)
}

func TestReduceMarkSavedChecksRevision(t *testing.T) {
	s := begin(greetingState(), "hi")
	s = Reduce(s, AppendDelta{Generation: s.Generation, Text: "a"})
	old := s.Revision
	s = Reduce(s, AppendDelta{Generation: s.Generation, Text: "b"})

	s = Reduce(s, MarkSaved{Revision: old, SessionID: "x"})
	require.True(t, s.Dirty)
	require.Empty(t, s.ActiveSessionID)

	s = Reduce(s, MarkSaved{Revision: s.Revision, SessionID: "x"})
	require.False(t, s.Dirty)
	require.Equal(t, "x", s.ActiveSessionID)
}

func TestReduceDismissErrorKeepsMessages(t *testing.T) {
	s := begin(greetingState(), "hi")
	s = Reduce(s, FailTurn{Generation: s.Generation, Err: "Failed to get response: nope", Input: "hi"})
	messages := s.Messages

	s = Reduce(s, DismissError{})
	require.Empty(t, s.Error)
	require.Equal(t, messages, s.Messages)
}

func TestReduceTruncateKeepsOpeningMessage(t *testing.T) {
	s := begin(greetingState(), "hi")
	s = Reduce(s, FinishTurn{Generation: s.Generation})

	require.Equal(t, s, Reduce(s, Truncate{N: 0}))

	cut := Reduce(s, Truncate{N: 1})
	require.Len(t, cut.Messages, 1)
	require.Equal(t, chat.SenderAI, cut.Messages[0].Sender)
	require.True(t, cut.Dirty)
}
