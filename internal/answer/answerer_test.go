package answer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/carraro/deskflow/internal/llm"
	"github.com/carraro/deskflow/internal/retrieval"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error

	calls    int
	lastUser string
}

func (m *mockChatter) Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error) {
	m.calls++
	for _, msg := range messages {
		if msg.Role == "user" {
			m.lastUser = msg.Content
		}
	}
	return m.response, m.err
}

func ptoPassages() []retrieval.Passage {
	return []retrieval.Passage{
		{ID: "c1", Source: "PTO Policy", Text: "Employees accrue 1.5 PTO days per month.", Score: 0.9},
		{ID: "c2", Source: "PTO Policy", Text: "Unused PTO carries over up to 5 days.", Score: 0.8},
		{ID: "c3", Source: "Employee Handbook", Text: "PTO requests need manager approval.", Score: 0.6},
	}
}

func TestAnswer_Grounded(t *testing.T) {
	mock := &mockChatter{response: "You accrue 1.5 PTO days per month; unused days carry over up to 5."}
	a := NewAnswerer(mock, "m", 0)

	got, err := a.Answer(context.Background(), "What is the PTO policy?", ptoPassages())
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Status != Grounded {
		t.Fatalf("Status = %q, want GROUNDED", got.Status)
	}
	if got.Text == "" {
		t.Error("Text is empty for grounded answer")
	}
	if want := []string{"PTO Policy", "Employee Handbook"}; !reflect.DeepEqual(got.Sources, want) {
		t.Errorf("Sources = %v, want %v (deduplicated, ingestion order)", got.Sources, want)
	}
}

func TestAnswer_EmptyPassagesShortCircuits(t *testing.T) {
	mock := &mockChatter{response: "should never be used"}
	a := NewAnswerer(mock, "m", 0)

	got, err := a.Answer(context.Background(), "What is the PTO policy?", nil)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Status != Insufficient {
		t.Errorf("Status = %q, want INSUFFICIENT", got.Status)
	}
	if mock.calls != 0 {
		t.Errorf("completion called %d times with no passages, want 0", mock.calls)
	}
}

func TestAnswer_NoAnswerToken(t *testing.T) {
	for _, response := range []string{"NO_ANSWER", "NO_ANSWER.", "  NO_ANSWER\n"} {
		mock := &mockChatter{response: response}
		a := NewAnswerer(mock, "m", 0)

		got, err := a.Answer(context.Background(), "q", ptoPassages())
		if err != nil {
			t.Fatalf("Answer(%q): %v", response, err)
		}
		if got.Status != Insufficient {
			t.Errorf("response %q: Status = %q, want INSUFFICIENT", response, got.Status)
		}
		if got.Text != "" {
			t.Errorf("response %q: Text = %q, want empty", response, got.Text)
		}
	}
}

func TestAnswer_TokenInsideProseIsGrounded(t *testing.T) {
	mock := &mockChatter{response: "The policy says NO_ANSWER is not a valid leave code."}
	a := NewAnswerer(mock, "m", 0)

	got, err := a.Answer(context.Background(), "q", ptoPassages())
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Status != Grounded {
		t.Errorf("Status = %q, want GROUNDED (token only counts standalone)", got.Status)
	}
}

func TestAnswer_ProviderFailureIsGenerationError(t *testing.T) {
	mock := &mockChatter{err: fmt.Errorf("upstream timeout")}
	a := NewAnswerer(mock, "m", 0)

	_, err := a.Answer(context.Background(), "q", ptoPassages())
	var ge *GenerationError
	if !errors.As(err, &ge) {
		t.Fatalf("error = %v, want *GenerationError", err)
	}
}

func TestAnswer_PromptCarriesPassagesAndQuestion(t *testing.T) {
	mock := &mockChatter{response: "answer"}
	a := NewAnswerer(mock, "m", 0)

	if _, err := a.Answer(context.Background(), "What is the PTO policy?", ptoPassages()); err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if !strings.Contains(mock.lastUser, "What is the PTO policy?") {
		t.Error("user message missing the question")
	}
	if !strings.Contains(mock.lastUser, "Employees accrue 1.5 PTO days per month.") {
		t.Error("user message missing passage text")
	}
	if !strings.Contains(mock.lastUser, "[Source: PTO Policy]") {
		t.Error("user message missing passage provenance")
	}
}
