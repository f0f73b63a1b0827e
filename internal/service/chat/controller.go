package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
	"github.com/zhouzirui/persona-studio/backend/internal/model/persona"
	"github.com/zhouzirui/persona-studio/backend/internal/service/ai"
	"github.com/zhouzirui/persona-studio/backend/internal/service/session"
)

var (
	ErrPersonaNotFound     = errors.New("persona not found")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrStreamInFlight      = errors.New("a response is already streaming")
	ErrNotChatPersona      = errors.New("persona does not support chat")
	ErrNothingToRetry      = errors.New("no user message to retry")
	ErrTurnCanceled        = errors.New("response was cancelled")
	ErrSessionNameRequired = errors.New("session name is required")
	ErrNothingToSave       = errors.New("conversation has nothing to save")
	ErrPersonaChanged      = errors.New("persona changed while loading the session")
	ErrClosed              = errors.New("chat controller is closed")
)

// IsValidation reports whether err is an input the controller silently refused.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrStreamInFlight),
		errors.Is(err, ErrNotChatPersona),
		errors.Is(err, ErrNothingToRetry),
		errors.Is(err, ErrSessionNameRequired),
		errors.Is(err, ErrNothingToSave):
		return true
	}
	return false
}

// SessionStore is the persistence the controller needs.
type SessionStore interface {
	List(ctx context.Context, personaID string) ([]chat.Session, error)
	Save(ctx context.Context, personaID, name string, messages []chat.Message) (string, error)
	Load(ctx context.Context, personaID, sessionID string) ([]chat.Message, error)
	Delete(ctx context.Context, personaID, sessionID string) error
	Autosave(ctx context.Context, personaID string, messages []chat.Message) error
}

// UpdateKind names the transition that produced an Update.
type UpdateKind string

const (
	UpdateReset          UpdateKind = "reset"
	UpdateTurnStarted    UpdateKind = "turn_started"
	UpdateDelta          UpdateKind = "delta"
	UpdateTurnFinished   UpdateKind = "turn_finished"
	UpdateTurnFailed     UpdateKind = "turn_failed"
	UpdateTurnCanceled   UpdateKind = "turn_canceled"
	UpdateTruncated      UpdateKind = "truncated"
	UpdateErrorDismissed UpdateKind = "error_dismissed"
	UpdateSaved          UpdateKind = "saved"
	UpdateLoaded         UpdateKind = "loaded"
)

// Update is pushed to subscribers after every transition.
type Update struct {
	Kind  UpdateKind `json:"kind"`
	Delta string     `json:"delta,omitempty"`
	State State      `json:"state"`
}

// DeltaFunc receives the text deltas of one turn, in order.
type DeltaFunc func(text string)

// Option customises a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for message timestamps and export names.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller owns the conversation of the selected persona. Every mutation goes through
// dispatch while holding mu, so sends, autosave and persona switches never interleave
// inside a transition.
type Controller struct {
	mu       sync.Mutex
	state    State
	current  persona.Persona
	cancel   context.CancelFunc
	closed   bool
	subs     map[int]chan Update
	nextSub  int
	personas persona.Store
	streamer ai.ChatStreamer
	sessions SessionStore
	clock    func() time.Time
}

// NewController starts on personaID, or on the first persona when it is unknown.
func NewController(personas persona.Store, personaID string, streamer ai.ChatStreamer, sessions SessionStore, opts ...Option) (*Controller, error) {
	c := &Controller{
		personas: personas,
		streamer: streamer,
		sessions: sessions,
		clock:    time.Now,
		subs:     make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(c)
	}

	p, ok := personas.FindByID(personaID)
	if !ok {
		if p, ok = personas.First(); !ok {
			return nil, ErrPersonaNotFound
		}
	}
	c.current = p
	c.state = Reduce(State{}, Reset{PersonaID: p.ID, Greeting: c.greeting(p)})
	return c, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Persona returns the selected persona.
func (c *Controller) Persona() persona.Persona {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SelectPersona hard-resets the conversation to the greeting of personaID and cancels any
// running stream.
func (c *Controller) SelectPersona(personaID string) (persona.Persona, error) {
	p, ok := c.personas.FindByID(personaID)
	if !ok {
		return persona.Persona{}, ErrPersonaNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelStreamLocked()
	c.current = p
	c.dispatchLocked(UpdateReset, "", Reset{PersonaID: p.ID, Greeting: c.greeting(p)})
	log.Printf("[chat] persona selected id=%s", p.ID)
	return p, nil
}

// Clear resets the conversation to the greeting. Stored sessions are untouched.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelStreamLocked()
	c.dispatchLocked(UpdateReset, "", Reset{PersonaID: c.current.ID, Greeting: c.greeting(c.current)})
}

// DismissError clears the error without touching the conversation.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Error == "" {
		return
	}
	c.dispatchLocked(UpdateErrorDismissed, "", DismissError{})
}

// turn is one in-flight request.
type turn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	generation uint64
	input      string
	history    []chat.Message
	persona    persona.Persona
}

// Send appends text as a user message and streams the answer into a trailing AI message.
// It blocks until the stream ends and returns the finished AI message. On failure the turn
// is rolled back and the state error is set; on cancellation the applied text is kept and
// ErrTurnCanceled is returned.
func (c *Controller) Send(ctx context.Context, text string, onDelta DeltaFunc) (chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Message{}, ErrEmptyMessage
	}

	c.mu.Lock()
	t, err := c.beginTurnLocked(ctx, text, -1)
	c.mu.Unlock()
	if err != nil {
		return chat.Message{}, err
	}
	return c.run(t, onDelta)
}

// RetryLast re-sends the input of a rolled back turn, or else the most recent user message
// after truncating the conversation just before it.
func (c *Controller) RetryLast(ctx context.Context, onDelta DeltaFunc) (chat.Message, error) {
	c.mu.Lock()
	text, cut, err := c.retryTargetLocked()
	if err != nil {
		c.mu.Unlock()
		return chat.Message{}, err
	}

	t, err := c.beginTurnLocked(ctx, text, cut)
	c.mu.Unlock()
	if err != nil {
		return chat.Message{}, err
	}
	return c.run(t, onDelta)
}

// CanRetry reports why RetryLast would be refused right now, or nil.
func (c *Controller) CanRetry() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if !c.current.IsChat() {
		return ErrNotChatPersona
	}
	_, _, err := c.retryTargetLocked()
	return err
}

// retryTargetLocked picks the text to resend and the index to truncate at (-1 for none).
func (c *Controller) retryTargetLocked() (string, int, error) {
	if c.state.Streaming {
		return "", -1, ErrStreamInFlight
	}
	if c.state.FailedInput != "" {
		return c.state.FailedInput, -1, nil
	}
	// index 0 is always the opening AI message
	for i := len(c.state.Messages) - 1; i > 0; i-- {
		if msg := c.state.Messages[i]; msg.Sender == chat.SenderUser && !msg.IsBlank() {
			return msg.Text, i, nil
		}
	}
	return "", -1, ErrNothingToRetry
}

func (c *Controller) beginTurnLocked(ctx context.Context, text string, cut int) (*turn, error) {
	switch {
	case c.closed:
		return nil, ErrClosed
	case !c.current.IsChat():
		return nil, ErrNotChatPersona
	case c.state.Streaming:
		return nil, ErrStreamInFlight
	}

	if cut >= 0 {
		c.dispatchLocked(UpdateTruncated, "", Truncate{N: cut})
	}

	now := c.clock().UnixMilli()
	state := c.dispatchLocked(UpdateTurnStarted, "", BeginTurn{
		User:        chat.Message{Sender: chat.SenderUser, Text: text, Timestamp: now},
		Placeholder: chat.Message{Sender: chat.SenderAI, Timestamp: now},
	})

	prior := state.Messages[:len(state.Messages)-1]
	history := make([]chat.Message, 0, len(prior))
	for _, msg := range prior {
		if !msg.IsBlank() {
			history = append(history, msg)
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return &turn{
		ctx:        streamCtx,
		cancel:     cancel,
		generation: state.Generation,
		input:      text,
		history:    chat.CloneMessages(history),
		persona:    c.current,
	}, nil
}

func (c *Controller) run(t *turn, onDelta DeltaFunc) (chat.Message, error) {
	defer t.cancel()

	stream, err := c.streamer.StreamChat(t.ctx, t.history, t.persona.SystemInstruction, t.persona.Grounding)
	if err != nil {
		return chat.Message{}, c.endFailed(t, err)
	}
	defer stream.Close()

	var sources []chat.Source
	seen := make(map[string]struct{})
	for {
		chunk, err := stream.Recv()
		if t.ctx.Err() != nil {
			return chat.Message{}, c.endCanceled(t)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return chat.Message{}, c.endFailed(t, err)
		}

		for _, src := range chunk.Sources {
			if _, dup := seen[src.URI]; dup || src.URI == "" {
				continue
			}
			seen[src.URI] = struct{}{}
			sources = append(sources, src)
		}
		if chunk.Text == "" {
			continue
		}
		if !c.applyDelta(t, chunk.Text) {
			return chat.Message{}, ErrTurnCanceled
		}
		if onDelta != nil {
			onDelta(chunk.Text)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(t)
	if !c.state.current(t.generation) {
		return chat.Message{}, ErrTurnCanceled
	}
	state := c.dispatchLocked(UpdateTurnFinished, "", FinishTurn{Generation: t.generation, Sources: sources})
	return chat.CloneMessages(state.Messages[len(state.Messages)-1:])[0], nil
}

func (c *Controller) applyDelta(t *turn, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.current(t.generation) {
		return false
	}
	c.dispatchLocked(UpdateDelta, text, AppendDelta{Generation: t.generation, Text: text})
	return true
}

func (c *Controller) endFailed(t *turn, cause error) error {
	if t.ctx.Err() != nil {
		return c.endCanceled(t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked(t)
	if !c.state.current(t.generation) {
		return ErrTurnCanceled
	}
	log.Printf("[chat] turn failed persona=%s: %v", t.persona.ID, cause)
	c.dispatchLocked(UpdateTurnFailed, "", FailTurn{
		Generation: t.generation,
		Err:        "Failed to get response: " + cause.Error(),
		Input:      t.input,
	})
	return fmt.Errorf("stream chat: %w", cause)
}

func (c *Controller) endCanceled(t *turn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseLocked(t)
	if c.state.current(t.generation) {
		c.dispatchLocked(UpdateTurnCanceled, "", CancelTurn{Generation: t.generation})
	}
	return ErrTurnCanceled
}

// releaseLocked forgets the cancel func of t if it is still the registered one.
func (c *Controller) releaseLocked(t *turn) {
	if c.state.Generation == t.generation {
		c.cancel = nil
	}
}

func (c *Controller) cancelStreamLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Save stores the conversation as a named session, which becomes the active one.
func (c *Controller) Save(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrSessionNameRequired
	}

	c.mu.Lock()
	if len(c.state.Messages) <= 1 {
		c.mu.Unlock()
		return "", ErrNothingToSave
	}
	personaID, revision := c.state.PersonaID, c.state.Revision
	messages := chat.CloneMessages(c.state.Messages)
	c.mu.Unlock()

	id, err := c.sessions.Save(ctx, personaID, name, messages)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.PersonaID == personaID {
		c.dispatchLocked(UpdateSaved, "", MarkSaved{Revision: revision, SessionID: id})
	}
	log.Printf("[chat] session saved persona=%s id=%s", personaID, id)
	return id, nil
}

// Load replaces the conversation with a stored session, cancelling any stream.
func (c *Controller) Load(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	p := c.current
	c.mu.Unlock()

	messages, err := c.sessions.Load(ctx, p.ID, sessionID)
	if err != nil {
		return err
	}
	// a stored session may have been edited by hand; keep the opening AI message in front
	if len(messages) == 0 || messages[0].Sender != chat.SenderAI {
		greeting := c.greeting(p)
		if len(messages) > 0 && messages[0].Timestamp < greeting.Timestamp {
			greeting.Timestamp = messages[0].Timestamp
		}
		messages = append([]chat.Message{greeting}, messages...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.ID != p.ID {
		return ErrPersonaChanged
	}
	c.cancelStreamLocked()
	c.dispatchLocked(UpdateLoaded, "", LoadSession{SessionID: sessionID, Messages: messages})
	return nil
}

// Delete removes a stored session of the current persona. Unknown ids are ignored.
func (c *Controller) Delete(ctx context.Context, sessionID string) error {
	return c.sessions.Delete(ctx, c.Persona().ID, sessionID)
}

// SessionSummary is a stored session as shown by the session manager.
type SessionSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Timestamp    int64  `json:"timestamp"`
	MessageCount int    `json:"messageCount"`
	Autosave     bool   `json:"isAutosave"`
	Active       bool   `json:"isActive"`
	Latest       bool   `json:"isLatest"`
}

// Sessions lists the stored sessions of the current persona, newest first.
func (c *Controller) Sessions(ctx context.Context) ([]SessionSummary, error) {
	c.mu.Lock()
	personaID, active := c.state.PersonaID, c.state.ActiveSessionID
	c.mu.Unlock()

	sessions, err := c.sessions.List(ctx, personaID)
	if err != nil {
		return nil, err
	}

	out := make([]SessionSummary, 0, len(sessions))
	for i, s := range sessions {
		autosave := session.IsAutosaveID(s.ID)
		isActive := s.ID == active
		out = append(out, SessionSummary{
			ID:           s.ID,
			Name:         s.Name,
			Timestamp:    s.Timestamp,
			MessageCount: len(s.Messages),
			Autosave:     autosave,
			Active:       isActive,
			Latest:       i == 0 && !autosave && !isActive,
		})
	}
	return out, nil
}

// Subscribe registers a listener. A listener whose buffer is full loses its oldest queued
// update, so the last update it receives always carries the current state.
func (c *Controller) Subscribe(buffer int) (<-chan Update, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close cancels any stream and disconnects all subscribers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancelStreamLocked()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) dispatchLocked(kind UpdateKind, delta string, action Action) State {
	c.state = Reduce(c.state, action)
	update := Update{Kind: kind, Delta: delta, State: c.state.Clone()}
	for _, ch := range c.subs {
		deliver(ch, update)
	}
	return c.state
}

// deliver queues update on ch, evicting the oldest entry when the buffer is full. Only the
// dispatcher sends on ch, so after one eviction the send finds room.
func deliver(ch chan Update, update Update) {
	select {
	case ch <- update:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- update:
	default:
	}
}

func (c *Controller) greeting(p persona.Persona) chat.Message {
	return chat.Message{Sender: chat.SenderAI, Text: persona.Greeting(p), Timestamp: c.clock().UnixMilli()}
}
