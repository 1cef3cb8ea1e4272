package retrieval

import (
	"context"
	"fmt"
	"testing"
)

// stubEmbedClient implements EmbedClient for testing.
type stubEmbedClient struct {
	vec []float32
	err error
}

func (s *stubEmbedClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	return s.vec, s.err
}

// stubVectorStore implements VectorStore for testing.
type stubVectorStore struct {
	results []ScoredRecord
	err     error
}

func (s *stubVectorStore) Insert(records []Record) error { return nil }
func (s *stubVectorStore) Search(vector []float32, topK int) ([]ScoredRecord, error) {
	return s.results, s.err
}
func (s *stubVectorStore) DeleteByDoc(docID string) error { return nil }
func (s *stubVectorStore) Count() (int, error)            { return len(s.results), nil }

func TestRetrieve_FiltersBelowFloor(t *testing.T) {
	store := &stubVectorStore{results: []ScoredRecord{
		{Record: Record{ID: "a", DocTitle: "PTO Policy", TextChunk: "pto"}, Score: 0.9},
		{Record: Record{ID: "b", DocTitle: "PTO Policy", TextChunk: "meh"}, Score: 0.31},
		{Record: Record{ID: "c", DocTitle: "Expense Policy", TextChunk: "noise"}, Score: 0.1},
	}}
	r := NewRetriever(NewEmbedder(&stubEmbedClient{vec: []float32{1}}, "m"), store, 0.3)

	got := r.Retrieve(context.Background(), "what is the PTO policy", 4)
	if len(got) != 2 {
		t.Fatalf("got %d passages, want 2 (floor 0.3)", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("passages = [%s %s], want [a b]", got[0].ID, got[1].ID)
	}
	if got[0].Source != "PTO Policy" {
		t.Errorf("Source = %q, want doc title", got[0].Source)
	}
}

func TestRetrieve_EmbedFailureYieldsEmpty(t *testing.T) {
	r := NewRetriever(
		NewEmbedder(&stubEmbedClient{err: fmt.Errorf("provider down")}, "m"),
		&stubVectorStore{},
		0.3,
	)

	if got := r.Retrieve(context.Background(), "q", 4); len(got) != 0 {
		t.Errorf("got %d passages on embed failure, want 0", len(got))
	}
}

func TestRetrieve_SearchFailureYieldsEmpty(t *testing.T) {
	r := NewRetriever(
		NewEmbedder(&stubEmbedClient{vec: []float32{1}}, "m"),
		&stubVectorStore{err: fmt.Errorf("index corrupt")},
		0.3,
	)

	if got := r.Retrieve(context.Background(), "q", 4); len(got) != 0 {
		t.Errorf("got %d passages on search failure, want 0", len(got))
	}
}

func TestRetrieve_EmptyIndexIsNormal(t *testing.T) {
	r := NewRetriever(
		NewEmbedder(&stubEmbedClient{vec: []float32{1}}, "m"),
		&stubVectorStore{},
		0.3,
	)

	if got := r.Retrieve(context.Background(), "q", 4); got != nil && len(got) != 0 {
		t.Errorf("got %v for empty index, want empty", got)
	}
}
