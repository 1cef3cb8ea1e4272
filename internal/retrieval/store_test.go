package retrieval

import (
	"database/sql"
	"testing"
	"time"

	"github.com/carraro/deskflow/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func insertRecords(t *testing.T, store *SQLiteStore, recs []Record) {
	t.Helper()
	if err := store.Insert(recs); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestSearch_OrdersByScoreDescending(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	insertRecords(t, store, []Record{
		{ID: "far", DocID: "d1", DocTitle: "PTO Policy", TextChunk: "unrelated", Embedding: []float32{0, 1, 0}, Seq: 0, CreatedAt: base},
		{ID: "near", DocID: "d1", DocTitle: "PTO Policy", TextChunk: "PTO rules", Embedding: []float32{1, 0, 0}, Seq: 1, CreatedAt: base},
		{ID: "mid", DocID: "d2", DocTitle: "Expense Policy", TextChunk: "expenses", Embedding: []float32{1, 1, 0}, Seq: 0, CreatedAt: base.Add(time.Minute)},
	})

	got, err := store.Search([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	if got[0].ID != "near" || got[1].ID != "mid" || got[2].ID != "far" {
		t.Errorf("order = [%s %s %s], want [near mid far]", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Score <= got[1].Score || got[1].Score <= got[2].Score {
		t.Errorf("scores not descending: %v %v %v", got[0].Score, got[1].Score, got[2].Score)
	}
}

func TestSearch_TiesKeepIngestionOrder(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	// Identical embeddings: identical scores. The earlier-ingested chunk
	// must come first.
	insertRecords(t, store, []Record{
		{ID: "first", DocID: "d1", TextChunk: "a", Embedding: []float32{1, 0}, Seq: 0, CreatedAt: base},
		{ID: "second", DocID: "d1", TextChunk: "b", Embedding: []float32{1, 0}, Seq: 1, CreatedAt: base},
	})

	got, err := store.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != "first" || got[1].ID != "second" {
		t.Errorf("tie order = [%s %s], want [first second]", got[0].ID, got[1].ID)
	}
}

func TestSearch_TopKLimits(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))

	var recs []Record
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		recs = append(recs, Record{
			ID: id, DocID: "d1", TextChunk: id,
			Embedding: []float32{1, float32(i) * 0.1},
			Seq:       i,
		})
	}
	insertRecords(t, store, recs)

	got, err := store.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d results, want 2", len(got))
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))

	got, err := store.Search([]float32{1, 0}, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results from empty index, want 0", len(got))
	}
}

func TestSearch_ZeroQueryVector(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	insertRecords(t, store, []Record{
		{ID: "a", DocID: "d1", TextChunk: "x", Embedding: []float32{1, 0}},
	})

	got, err := store.Search([]float32{0, 0}, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != nil {
		t.Errorf("got %v for zero query vector, want nil", got)
	}
}

func TestDeleteByDoc(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	insertRecords(t, store, []Record{
		{ID: "a", DocID: "d1", TextChunk: "x", Embedding: []float32{1, 0}},
		{ID: "b", DocID: "d1", TextChunk: "y", Embedding: []float32{0, 1}},
		{ID: "c", DocID: "d2", TextChunk: "z", Embedding: []float32{1, 1}},
	})

	if err := store.DeleteByDoc("d1"); err != nil {
		t.Fatalf("DeleteByDoc: %v", err)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d after delete, want 1", n)
	}
}

func TestEncodeDecodeFloat32s(t *testing.T) {
	in := []float32{0.1, -2.5, 3.75, 0}
	out, err := decodeFloat32s(encodeFloat32s(in))
	if err != nil {
		t.Fatalf("decodeFloat32s: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d values, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecodeFloat32s_CorruptBlob(t *testing.T) {
	if _, err := decodeFloat32s([]byte{1, 2, 3}); err == nil {
		t.Error("decodeFloat32s(3 bytes) error = nil, want non-nil")
	}
}
