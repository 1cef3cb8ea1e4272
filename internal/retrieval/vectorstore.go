package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. The current implementation uses SQLite with brute-force cosine
// similarity over the policy_vectors table; an ANN-capable backend can be
// swapped in behind this interface when the corpus outgrows it.
type VectorStore interface {
	// Insert adds records to the index.
	Insert(records []Record) error

	// Search returns the top-K records most similar to the query vector,
	// ordered by score descending with ties broken by ingestion order.
	Search(vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteByDoc removes all records belonging to the given document.
	DeleteByDoc(docID string) error

	// Count returns the number of indexed records.
	Count() (int, error)
}

// Record represents one embedded chunk of a policy document.
type Record struct {
	ID        string
	DocID     string
	DocTitle  string
	TextChunk string
	Embedding []float32
	Seq       int // chunk position within the source document
	CreatedAt time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
