package retrieval

import (
	"context"
	"log/slog"
)

// Passage is a retrieved policy fragment with provenance and relevance score.
type Passage struct {
	ID     string
	Source string // title of the source document
	Text   string
	Score  float32
}

// Retriever combines embedding and vector search to find policy passages
// relevant to a question.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	minScore float32
}

// NewRetriever creates a Retriever backed by the given Embedder and
// VectorStore. Passages scoring below minScore are dropped.
func NewRetriever(embedder *Embedder, store VectorStore, minScore float64) *Retriever {
	return &Retriever{embedder: embedder, store: store, minScore: float32(minScore)}
}

// Retrieve embeds the question and returns the top-K most similar passages
// above the relevance floor, ordered by score descending (ties stable by
// ingestion order). An empty result is a normal outcome, not an error:
// embedding or search failures are logged and absorbed here so callers see
// the same empty-passages path an unmatched question produces.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) []Passage {
	if topK <= 0 {
		topK = 4
	}

	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		slog.Warn("retrieval: embedding query failed, returning no passages", "error", err)
		return nil
	}

	scored, err := r.store.Search(vec, topK)
	if err != nil {
		slog.Warn("retrieval: vector search failed, returning no passages", "error", err)
		return nil
	}

	passages := make([]Passage, 0, len(scored))
	for _, s := range scored {
		if s.Score < r.minScore {
			continue
		}
		passages = append(passages, Passage{
			ID:     s.ID,
			Source: s.DocTitle,
			Text:   s.TextChunk,
			Score:  s.Score,
		})
	}
	return passages
}
