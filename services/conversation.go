package services

import (
	"strings"
	"sync"
	"time"

	"legal-ai-assistant/internal/ai"
)

const (
	DefaultSessionID    = "default"
	DefaultHistoryLimit = 20
)

// Turn is one message of a conversation.
type Turn struct {
	Role    ai.Role
	Content string
	At      time.Time
}

// Conversation is the ordered history of one session, capped at limit turns.
// Appends are serialized; the order of appends is the conversation order.
type Conversation struct {
	mu    sync.Mutex
	turns []Turn
	limit int
}

func newConversation(limit int) *Conversation {
	return &Conversation{limit: limit}
}

// Append adds turns as one unit and drops the oldest turns beyond the limit.
// The window never starts with an assistant turn.
func (c *Conversation) Append(turns ...Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, turns...)
	if c.limit > 0 && len(c.turns) > c.limit {
		c.turns = append([]Turn(nil), c.turns[len(c.turns)-c.limit:]...)
	}
	for len(c.turns) > 0 && c.turns[0].Role != ai.RoleUser {
		c.turns = c.turns[1:]
	}
}

// Turns returns a copy of the current window.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Turn{}, c.turns...)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	c.turns = nil
	c.mu.Unlock()
}

// ConversationMemory holds one Conversation per session key.
type ConversationMemory struct {
	mu       sync.Mutex
	sessions map[string]*Conversation
	limit    int
}

func NewConversationMemory(limit int) *ConversationMemory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &ConversationMemory{
		sessions: make(map[string]*Conversation),
		limit:    limit,
	}
}

// SessionKey normalizes a caller-supplied session id.
func SessionKey(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return DefaultSessionID
	}
	return id
}

// Session returns the conversation for id, creating it on first use.
func (m *ConversationMemory) Session(id string) *Conversation {
	id = SessionKey(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	if !ok {
		c = newConversation(m.limit)
		m.sessions[id] = c
	}
	return c
}

// History returns the turns of id without creating a session.
func (m *ConversationMemory) History(id string) []Turn {
	m.mu.Lock()
	c, ok := m.sessions[SessionKey(id)]
	m.mu.Unlock()
	if !ok {
		return []Turn{}
	}
	return c.Turns()
}

// Clear empties the session in place, so a turn still holding its
// Conversation appends to the live session.
func (m *ConversationMemory) Clear(id string) {
	m.mu.Lock()
	c, ok := m.sessions[SessionKey(id)]
	m.mu.Unlock()
	if ok {
		c.Clear()
	}
}

func (m *ConversationMemory) ClearAll() {
	m.mu.Lock()
	m.sessions = make(map[string]*Conversation)
	m.mu.Unlock()
}

func (m *ConversationMemory) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
