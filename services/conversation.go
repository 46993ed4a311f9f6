package services

import (
	"sync"

	"github.com/google/uuid"

	"analystbot/models"
)

// conversation owns one ordered turn history. Its mutex serializes
// read-modify-write access so two concurrent requests on the same id cannot
// interleave or drop an exchange.
type conversation struct {
	mu    sync.Mutex
	turns []models.Turn
}

// ConversationStore is the in-memory registry of conversations keyed by id.
// Conversations live for the lifetime of the process; there is no eviction.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
}

// NewConversationStore creates an empty store
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*conversation),
	}
}

// GetOrCreate resolves an id to its history. An empty or unknown id mints a
// fresh conversation rather than erroring, so stale ids degrade to a clean
// start instead of a failed request. The returned slice is a snapshot.
func (s *ConversationStore) GetOrCreate(id string) (string, []models.Turn) {
	if id != "" {
		s.mu.RLock()
		conv, ok := s.conversations[id]
		s.mu.RUnlock()
		if ok {
			return id, conv.snapshot()
		}
	}

	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have created it between the locks
	if conv, ok := s.conversations[id]; ok {
		return id, conv.snapshot()
	}
	s.conversations[id] = &conversation{}
	return id, nil
}

// AppendExchange records one completed request cycle: the user turn followed
// by the assistant turn, appended atomically under the conversation's lock so
// turn roles keep strictly alternating within each exchange.
func (s *ConversationStore) AppendExchange(id string, user, assistant models.Turn) {
	conv := s.ensure(id)

	conv.mu.Lock()
	defer conv.mu.Unlock()
	user.Role = models.RoleUser
	assistant.Role = models.RoleAssistant
	conv.turns = append(conv.turns, user, assistant)
}

// History returns a snapshot of a conversation's turns, or nil when the id is
// unknown.
func (s *ConversationStore) History(id string) []models.Turn {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return conv.snapshot()
}

// Count returns the number of tracked conversations
func (s *ConversationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

func (s *ConversationStore) ensure(id string) *conversation {
	s.mu.RLock()
	conv, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return conv
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok = s.conversations[id]; ok {
		return conv
	}
	conv = &conversation{}
	s.conversations[id] = conv
	return conv
}

func (c *conversation) snapshot() []models.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) == 0 {
		return nil
	}
	out := make([]models.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}
