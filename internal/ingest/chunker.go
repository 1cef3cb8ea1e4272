// Package ingest turns policy documents into embedded chunks in the vector
// index. Documents arrive through the CLI, the HTTP API or the MCP server;
// embedding runs asynchronously off the SQLite job queue.
package ingest

import "strings"

const (
	// DefaultChunkSize and DefaultChunkOverlap are rune counts.
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 30
)

// Chunker splits text into overlapping rune windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker creates a Chunker. Non-positive size falls back to the default;
// overlap is clamped below size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns the chunks of text in order. Whitespace-only input yields
// no chunks. The final chunk may be shorter than the window.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
	}

	// Trimming can empty a chunk made of whitespace only.
	out := chunks[:0]
	for _, ch := range chunks {
		if ch != "" {
			out = append(out, ch)
		}
	}
	return out
}
