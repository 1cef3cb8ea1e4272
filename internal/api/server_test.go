package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/carraro/deskflow/internal/answer"
	"github.com/carraro/deskflow/internal/flow"
	"github.com/carraro/deskflow/internal/session"
	"github.com/carraro/deskflow/internal/storage"
)

const testToken = "test-token"

// mockFlow returns a canned outcome and records the last request.
type mockFlow struct {
	outcome flow.Outcome
	err     error

	lastQuery     string
	lastRequester string
}

func (m *mockFlow) Run(ctx context.Context, sess *session.Session, query, requester string) (flow.Outcome, error) {
	m.lastQuery = query
	m.lastRequester = requester
	if m.err != nil {
		return flow.Outcome{}, m.err
	}
	sess.Append(session.RoleUser, query)
	sess.Append(session.RoleAssistant, m.outcome.Message())
	return m.outcome, nil
}

func newTestDeps(t *testing.T) (Deps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return Deps{
		Store:    store,
		Sessions: session.NewManager(),
		Flow: &mockFlow{outcome: flow.Outcome{
			Kind:   flow.Answered,
			Answer: &answer.Result{Status: answer.Grounded, Text: "grounded answer", Sources: []string{"PTO Policy"}},
		}},
		Token:      testToken,
		HTTPClient: http.DefaultClient,
	}, store
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
}

func TestAuth_RejectsMissingAndWrongToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewHandler(deps)

	for _, auth := range []string{"", "Bearer wrong", "Basic abc"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: status = %d, want 401", auth, rec.Code)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewHandler(deps)

	rec := doRequest(t, handler, http.MethodPost, "/v1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /v1/sessions = %d, want 201", rec.Code)
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	id := created["id"]
	if id == "" {
		t.Fatal("no session id returned")
	}

	rec = doRequest(t, handler, http.MethodDelete, "/v1/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE session = %d, want 200", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodDelete, "/v1/sessions/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("DELETE closed session = %d, want 404", rec.Code)
	}
}

func TestPostMessage(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewHandler(deps)

	sess := deps.Sessions.Open()
	rec := doRequest(t, handler, http.MethodPost, "/v1/sessions/"+sess.ID()+"/messages",
		MessageRequest{Message: "What is the PTO policy?", Requester: "ana"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST message = %d: %s", rec.Code, rec.Body.String())
	}

	var resp MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Kind != flow.Answered {
		t.Errorf("Kind = %q, want ANSWERED", resp.Kind)
	}
	if resp.Text == "" {
		t.Error("Text is empty")
	}

	mf := deps.Flow.(*mockFlow)
	if mf.lastQuery != "What is the PTO policy?" || mf.lastRequester != "ana" {
		t.Errorf("flow received query %q requester %q", mf.lastQuery, mf.lastRequester)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewHandler(deps)
	sess := deps.Sessions.Open()

	rec := doRequest(t, handler, http.MethodPost, "/v1/sessions/"+sess.ID()+"/messages", MessageRequest{Message: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty message = %d, want 400", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodPost, "/v1/sessions/no-such/messages", MessageRequest{Message: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d, want 404", rec.Code)
	}
}

func TestPostMessage_FlowErrorIs500(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Flow = &mockFlow{err: fmt.Errorf("disk full")}
	handler := NewHandler(deps)
	sess := deps.Sessions.Open()

	rec := doRequest(t, handler, http.MethodPost, "/v1/sessions/"+sess.ID()+"/messages", MessageRequest{Message: "hi"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("flow error = %d, want 500", rec.Code)
	}
}

func TestTickets(t *testing.T) {
	deps, store := newTestDeps(t)
	handler := NewHandler(deps)

	ticket := storage.Ticket{
		ID:        "t-1",
		SessionID: "s-1",
		Summary:   "laptop broken",
		Requester: "ana",
		Urgency:   "HIGH",
		Status:    storage.TicketStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.SaveTicket(ticket); err != nil {
		t.Fatalf("saving ticket: %v", err)
	}

	rec := doRequest(t, handler, http.MethodGet, "/tickets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /tickets = %d", rec.Code)
	}
	var list []storage.Ticket
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].ID != "t-1" {
		t.Errorf("list = %+v, want the saved ticket", list)
	}

	rec = doRequest(t, handler, http.MethodGet, "/tickets/t-1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /tickets/t-1 = %d", rec.Code)
	}

	rec = doRequest(t, handler, http.MethodGet, "/tickets/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /tickets/ghost = %d, want 404", rec.Code)
	}
}
