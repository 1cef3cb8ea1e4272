// Package session keeps per-conversation transcripts in memory. Sessions are
// identified by UUID and live until explicitly closed or the process exits;
// nothing here touches durable storage.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a single conversation. Methods are safe for concurrent use.
type Session struct {
	id      string
	created time.Time

	turnMu sync.Mutex // serializes whole turns, see LockTurn

	mu    sync.Mutex
	turns []Turn
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// LockTurn blocks until no other turn is running on this session. One
// conversation is single-threaded: a turn runs to completion before the next
// message is processed, so request/outcome pairs never interleave in the
// transcript.
func (s *Session) LockTurn() { s.turnMu.Lock() }

// UnlockTurn releases the turn lock taken by LockTurn.
func (s *Session) UnlockTurn() { s.turnMu.Unlock() }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.created }

// Append records a turn at the end of the transcript.
func (s *Session) Append(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: role, Content: content, CreatedAt: time.Now()})
}

// Turns returns a copy of the transcript in order.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Context serializes the transcript for inclusion in a prompt, one
// "role: content" line per turn. Empty for a fresh session.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	for i, t := range s.turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", t.Role, t.Content)
	}
	return sb.String()
}

// Len returns the number of turns recorded so far.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Manager tracks open sessions. Safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Open creates a new session with a fresh UUID.
func (m *Manager) Open() *Session {
	s := &Session{id: uuid.NewString(), created: time.Now()}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with the given id, or false if it does not exist
// or was already closed.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close discards the session. Closing an unknown id is a no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
