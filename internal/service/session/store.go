package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/persona-studio/backend/internal/model/chat"
	"github.com/zhouzirui/persona-studio/backend/internal/storage"
)

const (
	// CollectionKey is the single record holding every persona's sessions.
	CollectionKey = "persona-studio-sessions"
	// LastPersonaKey remembers the persona selected when the app last ran.
	LastPersonaKey = "persona-studio-last-persona-id"

	autosavePrefix = "autosave-"
	autosaveName   = "[Autosave]"
)

// AutosaveID is the fixed id of a persona's autosave slot.
func AutosaveID(personaID string) string {
	return autosavePrefix + personaID
}

// IsAutosaveID reports whether id names an autosave slot.
func IsAutosaveID(id string) bool {
	return strings.HasPrefix(id, autosavePrefix)
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for session timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator overrides uuid generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Store persists named conversation snapshots per persona. Every mutation rewrites the
// whole collection in one backend Put, serialized by mu.
type Store struct {
	mu      sync.Mutex
	backend storage.Backend
	clock   func() time.Time
	newID   func() string
}

// NewStore wraps a storage backend.
func NewStore(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		clock:   time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a persona's sessions, newest first.
func (s *Store) List(ctx context.Context, personaID string) ([]chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	sessions := cloneSessions(collection[personaID])
	chat.SortByRecent(sessions)
	return sessions, nil
}

// Save stores messages as a new named session and drops the persona's autosave slot,
// which the manual save supersedes.
func (s *Store) Save(ctx context.Context, personaID, name string, messages []chat.Message) (string, error) {
	if personaID == "" {
		return "", ErrPersonaRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read(ctx)
	if err != nil {
		return "", err
	}

	created := chat.Session{
		ID:        s.newID(),
		Name:      name,
		Timestamp: s.clock().UnixMilli(),
		Messages:  chat.CloneMessages(messages),
	}

	autosaveID := AutosaveID(personaID)
	kept := make([]chat.Session, 0, len(collection[personaID])+1)
	for _, existing := range collection[personaID] {
		if existing.ID != autosaveID {
			kept = append(kept, existing)
		}
	}
	collection[personaID] = append(kept, created)

	if err := s.write(ctx, collection); err != nil {
		return "", err
	}
	return created.ID, nil
}

// Load returns the messages of a saved session.
func (s *Store) Load(ctx context.Context, personaID, sessionID string) ([]chat.Message, error) {
	found, err := s.Get(ctx, personaID, sessionID)
	if err != nil {
		return nil, err
	}
	return found.Messages, nil
}

// Get returns a saved session including its metadata.
func (s *Store) Get(ctx context.Context, personaID, sessionID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read(ctx)
	if err != nil {
		return chat.Session{}, err
	}
	for _, existing := range collection[personaID] {
		if existing.ID == sessionID {
			existing.Messages = chat.CloneMessages(existing.Messages)
			return existing, nil
		}
	}
	return chat.Session{}, ErrNotFound
}

// Delete removes a session. Deleting an unknown id is not an error and writes nothing.
func (s *Store) Delete(ctx context.Context, personaID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read(ctx)
	if err != nil {
		return err
	}

	sessions := collection[personaID]
	kept := make([]chat.Session, 0, len(sessions))
	for _, existing := range sessions {
		if existing.ID != sessionID {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(sessions) {
		return nil
	}
	collection[personaID] = kept
	return s.write(ctx, collection)
}

// Autosave overwrites the persona's autosave slot in place, or appends it on first use.
func (s *Store) Autosave(ctx context.Context, personaID string, messages []chat.Message) error {
	if personaID == "" {
		return ErrPersonaRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read(ctx)
	if err != nil {
		return err
	}

	snapshot := chat.Session{
		ID:        AutosaveID(personaID),
		Name:      autosaveName,
		Timestamp: s.clock().UnixMilli(),
		Messages:  chat.CloneMessages(messages),
	}

	sessions := collection[personaID]
	replaced := false
	for i := range sessions {
		if sessions[i].ID == snapshot.ID {
			sessions[i] = snapshot
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, snapshot)
	}
	collection[personaID] = sessions

	return s.write(ctx, collection)
}

// LastPersona returns the persona id remembered by SetLastPersona, or "" if none.
func (s *Store) LastPersona(ctx context.Context) (string, error) {
	data, err := s.backend.Get(ctx, LastPersonaKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return "", nil
		}
		return "", &StorageError{Op: "read last persona", Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// SetLastPersona remembers the selected persona across restarts.
func (s *Store) SetLastPersona(ctx context.Context, personaID string) error {
	if err := s.backend.Put(ctx, LastPersonaKey, []byte(personaID)); err != nil {
		return &StorageError{Op: "write last persona", Err: err}
	}
	return nil
}

func (s *Store) read(ctx context.Context) (chat.Collection, error) {
	data, err := s.backend.Get(ctx, CollectionKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return make(chat.Collection), nil
		}
		return nil, &StorageError{Op: "read sessions", Err: err}
	}

	collection := make(chat.Collection)
	if len(data) == 0 {
		return collection, nil
	}
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, &StorageError{Op: "decode sessions", Err: err}
	}
	if collection == nil {
		collection = make(chat.Collection)
	}
	return collection, nil
}

func (s *Store) write(ctx context.Context, collection chat.Collection) error {
	data, err := json.Marshal(collection)
	if err != nil {
		return &StorageError{Op: "encode sessions", Err: err}
	}
	if err := s.backend.Put(ctx, CollectionKey, data); err != nil {
		return &StorageError{Op: "write sessions", Err: err}
	}
	return nil
}

func cloneSessions(sessions []chat.Session) []chat.Session {
	out := make([]chat.Session, len(sessions))
	for i, item := range sessions {
		out[i] = item
		out[i].Messages = chat.CloneMessages(item.Messages)
	}
	return out
}
