package session

import (
	"strings"
	"sync"
	"testing"
)

func TestSession_AppendAndContext(t *testing.T) {
	m := NewManager()
	s := m.Open()

	if s.Context() != "" {
		t.Errorf("fresh session Context() = %q, want empty", s.Context())
	}

	s.Append(RoleUser, "I need help with a policy")
	s.Append(RoleAssistant, "Which policy topic is this about?")
	s.Append(RoleUser, "PTO carryover")

	want := "user: I need help with a policy\nassistant: Which policy topic is this about?\nuser: PTO carryover"
	if got := s.Context(); got != want {
		t.Errorf("Context() = %q, want %q", got, want)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestSession_TurnsReturnsCopy(t *testing.T) {
	s := NewManager().Open()
	s.Append(RoleUser, "hello")

	turns := s.Turns()
	turns[0].Content = "mutated"

	if s.Turns()[0].Content != "hello" {
		t.Error("mutating the returned slice changed the transcript")
	}
}

func TestManager_OpenGetClose(t *testing.T) {
	m := NewManager()

	a := m.Open()
	b := m.Open()
	if a.ID() == b.ID() {
		t.Fatalf("two sessions share id %q", a.ID())
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	got, ok := m.Get(a.ID())
	if !ok || got != a {
		t.Errorf("Get(%q) = %v, %v", a.ID(), got, ok)
	}

	m.Close(a.ID())
	if _, ok := m.Get(a.ID()); ok {
		t.Error("closed session still retrievable")
	}
	m.Close("no-such-id") // no-op
	if m.Count() != 1 {
		t.Errorf("Count() = %d after close, want 1", m.Count())
	}
}

func TestManager_ConcurrentUse(t *testing.T) {
	m := NewManager()
	s := m.Open()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(RoleUser, "turn")
			m.Open()
			_, _ = m.Get(s.ID())
			_ = s.Context()
		}()
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Errorf("Len() = %d, want 20", s.Len())
	}
	if m.Count() != 21 {
		t.Errorf("Count() = %d, want 21", m.Count())
	}
	if got := s.Context(); strings.Count(got, "user: turn") != 20 {
		t.Errorf("Context() carries %d turns, want 20", strings.Count(got, "user: turn"))
	}
}
