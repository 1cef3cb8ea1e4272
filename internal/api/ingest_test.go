package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carraro/deskflow/internal/ingest"
)

func TestIngest_TextDocumentQueued(t *testing.T) {
	deps, store := newTestDeps(t)
	handler := NewHandler(deps)

	rec := doRequest(t, handler, http.MethodPost, "/ingest", IngestRequest{
		Title:   "PTO Policy",
		Content: "Employees accrue 1.5 PTO days per month.",
		Tags:    []string{"hr", "pto"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v, want queued with an id", resp)
	}

	doc, err := store.GetPolicyDoc(resp["id"])
	if err != nil {
		t.Fatalf("loading saved doc: %v", err)
	}
	if doc.Title != "PTO Policy" || doc.Source != "api" {
		t.Errorf("doc = %+v", doc)
	}

	job, err := store.ClaimNextJob([]string{ingest.JobEmbedDoc})
	if err != nil {
		t.Fatalf("claiming job: %v", err)
	}
	if job == nil {
		t.Fatal("no embed job enqueued")
	}
}

func TestIngest_Base64File(t *testing.T) {
	deps, store := newTestDeps(t)
	handler := NewHandler(deps)

	content := base64.StdEncoding.EncodeToString([]byte("Remote work policy text."))
	rec := doRequest(t, handler, http.MethodPost, "/ingest", IngestRequest{
		Type:    "file",
		Title:   "Remote Work",
		Content: content,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	doc, err := store.GetPolicyDoc(resp["id"])
	if err != nil {
		t.Fatalf("loading saved doc: %v", err)
	}
	if doc.Content != "Remote work policy text." {
		t.Errorf("content = %q, want decoded text", doc.Content)
	}
}

func TestIngest_URLFetchesAndStripsHTML(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1>Expense Policy</h1><script>x()</script><p>Meals up to $40/day.</p></body></html>`))
	}))
	defer upstream.Close()

	deps, store := newTestDeps(t)
	handler := NewHandler(deps)

	rec := doRequest(t, handler, http.MethodPost, "/ingest", IngestRequest{Type: "url", URL: upstream.URL})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	doc, err := store.GetPolicyDoc(resp["id"])
	if err != nil {
		t.Fatalf("loading saved doc: %v", err)
	}
	if doc.Title != upstream.URL {
		t.Errorf("title = %q, want the url as default title", doc.Title)
	}
	for _, want := range []string{"Expense Policy", "$40/day"} {
		if !strings.Contains(doc.Content, want) {
			t.Errorf("content %q missing %q", doc.Content, want)
		}
	}
	if strings.Contains(doc.Content, "x()") {
		t.Errorf("content %q still carries script text", doc.Content)
	}
}

func TestIngest_Validation(t *testing.T) {
	deps, _ := newTestDeps(t)
	handler := NewHandler(deps)

	cases := []struct {
		name string
		req  IngestRequest
	}{
		{"no content or url", IngestRequest{Title: "t"}},
		{"bad base64", IngestRequest{Type: "file", Content: "!!!not-base64!!!"}},
		{"whitespace content", IngestRequest{Content: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPost, "/ingest", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

type mockVectorDeleter struct {
	deleted []string
}

func (m *mockVectorDeleter) DeleteByDoc(docID string) error {
	m.deleted = append(m.deleted, docID)
	return nil
}

func TestDocuments_ListAndDelete(t *testing.T) {
	deps, store := newTestDeps(t)
	vectors := &mockVectorDeleter{}
	deps.Vectors = vectors
	handler := NewHandler(deps)

	rec := doRequest(t, handler, http.MethodPost, "/ingest", IngestRequest{Title: "doc", Content: "text"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /ingest = %d", rec.Code)
	}
	var created map[string]string
	json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doRequest(t, handler, http.MethodGet, "/documents", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /documents = %d", rec.Code)
	}
	var docs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("%d documents listed, want 1", len(docs))
	}
	if _, hasContent := docs[0]["content"]; hasContent {
		t.Error("listing exposes full document bodies")
	}

	rec = doRequest(t, handler, http.MethodDelete, "/documents/"+created["id"], nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE document = %d", rec.Code)
	}
	if len(vectors.deleted) != 1 || vectors.deleted[0] != created["id"] {
		t.Errorf("vector cleanup calls = %v", vectors.deleted)
	}
	if _, err := store.GetPolicyDoc(created["id"]); err == nil {
		t.Error("document still present after delete")
	}

	rec = doRequest(t, handler, http.MethodDelete, "/documents/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("DELETE ghost = %d, want 404", rec.Code)
	}
}
