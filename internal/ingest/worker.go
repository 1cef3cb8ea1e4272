package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carraro/deskflow/internal/retrieval"
	"github.com/carraro/deskflow/internal/storage"
)

// JobEmbedDoc is the queue job type for embedding a policy document.
const JobEmbedDoc = "embed_doc"

// JobStore abstracts the job queue and document lookups.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetPolicyDoc(id string) (storage.PolicyDoc, error)
}

// BatchEmbedder generates embeddings for a batch of chunks.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorWriter mutates the vector index.
type VectorWriter interface {
	Insert(records []retrieval.Record) error
	DeleteByDoc(docID string) error
}

// EnqueueDoc persists a policy document and queues it for embedding.
// Shared by the CLI, HTTP and MCP ingestion surfaces.
func EnqueueDoc(store *storage.Store, doc storage.PolicyDoc) error {
	if err := store.SavePolicyDoc(doc); err != nil {
		return fmt.Errorf("saving policy doc: %w", err)
	}

	payload, _ := json.Marshal(embedPayload{DocID: doc.ID})
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        JobEmbedDoc,
		PayloadJSON: string(payload),
		MaxAttempts: 3,
	}
	if err := store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing embed job: %w", err)
	}
	return nil
}

// Worker processes embed_doc jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	embedder BatchEmbedder
	vectors  VectorWriter
	chunker  *Chunker
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, embedder BatchEmbedder, vectors VectorWriter, chunker *Chunker, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	return &Worker{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		chunker:  chunker,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single embed_doc job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobEmbedDoc})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type embedPayload struct {
	DocID string `json:"doc_id"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetPolicyDoc(payload.DocID)
	if err != nil {
		return fmt.Errorf("loading policy doc %s: %w", payload.DocID, err)
	}

	chunks := w.chunker.Split(doc.Content)
	if len(chunks) == 0 {
		return fmt.Errorf("policy doc %s has no embeddable text", doc.ID)
	}

	vecs, err := w.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	// Re-ingestion replaces the doc's chunks instead of duplicating them.
	if err := w.vectors.DeleteByDoc(doc.ID); err != nil {
		return fmt.Errorf("clearing previous vectors: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:        uuid.NewString(),
			DocID:     doc.ID,
			DocTitle:  doc.Title,
			TextChunk: chunk,
			Embedding: vecs[i],
			Seq:       i,
			CreatedAt: now,
		}
	}

	if err := w.vectors.Insert(records); err != nil {
		return fmt.Errorf("inserting %d vectors: %w", len(records), err)
	}

	w.logger.Info("document embedded", "doc_id", doc.ID, "title", doc.Title, "chunks", len(records))
	return nil
}
