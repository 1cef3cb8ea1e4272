// Package api exposes the service desk over HTTP and MCP. The HTTP surface
// covers the chat loop (sessions and messages), document ingestion and
// ticket inspection; everything except /health sits behind bearer auth.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/carraro/deskflow/internal/flow"
	"github.com/carraro/deskflow/internal/session"
	"github.com/carraro/deskflow/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// FlowRunner executes one conversation turn.
type FlowRunner interface {
	Run(ctx context.Context, sess *session.Session, query, requester string) (flow.Outcome, error)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store      *storage.Store
	Sessions   *session.Manager
	Flow       FlowRunner
	Vectors    VectorDeleter // optional; if nil, vector cleanup is skipped on delete
	Token      string
	HTTPClient *http.Client
}

// VectorDeleter abstracts vector store cleanup for the API layer.
type VectorDeleter interface {
	DeleteByDoc(docID string) error
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/sessions", handleOpenSession(deps))
		r.Post("/v1/sessions/{id}/messages", handlePostMessage(deps))
		r.Delete("/v1/sessions/{id}", handleCloseSession(deps))

		r.Post("/ingest", handleIngest(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))

		r.Get("/tickets", handleListTickets(deps))
		r.Get("/tickets/{id}", handleGetTicket(deps))
	})

	return r
}

// BearerAuth rejects requests that do not carry the expected token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleOpenSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := deps.Sessions.Open()
		writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
	}
}

func handleCloseSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := deps.Sessions.Get(id); !ok {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		deps.Sessions.Close(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	}
}

// MessageRequest is one user turn.
type MessageRequest struct {
	Message   string `json:"message"`
	Requester string `json:"requester"`
}

// MessageResponse is the turn's terminal outcome plus its rendered text.
type MessageResponse struct {
	flow.Outcome
	Text string `json:"text"`
}

func handlePostMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		sess, ok := deps.Sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		outcome, err := deps.Flow.Run(r.Context(), sess, req.Message, req.Requester)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing turn: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, MessageResponse{Outcome: outcome, Text: outcome.Message()})
	}
}

func handleListTickets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		tickets, err := deps.Store.ListTickets(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list tickets: %v", err)
			return
		}
		if tickets == nil {
			tickets = []storage.Ticket{}
		}
		writeJSON(w, http.StatusOK, tickets)
	}
}

func handleGetTicket(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := deps.Store.GetTicket(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "ticket not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get ticket: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
