// Package answer produces grounded answers from retrieved policy passages,
// or an explicit insufficient-context signal when the passages cannot
// support one.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carraro/deskflow/internal/llm"
	"github.com/carraro/deskflow/internal/retrieval"
)

const defaultTimeout = 30 * time.Second

// noAnswerToken is the sentinel the model emits when the supplied context
// cannot support an answer.
const noAnswerToken = "NO_ANSWER"

const systemPrompt = `You are an internal policy assistant (HR/IT). Answer ONLY from the context provided below. Do not use outside knowledge.
If the context is not sufficient to answer, reply with exactly ` + noAnswerToken + ` and nothing else.`

// Status distinguishes a grounded answer from an insufficient-context outcome.
type Status string

const (
	Grounded     Status = "GROUNDED"
	Insufficient Status = "INSUFFICIENT"
)

// Result is the outcome of one answering attempt.
type Result struct {
	Status  Status
	Text    string   // set only when Status is Grounded
	Sources []string // cited source documents, ingestion order, deduplicated
}

// GenerationError reports a completion-call failure during answering. It is
// distinct from the Insufficient business outcome: both route into the
// fallback path, but they are reported differently to the user.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating answer: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Chatter is the interface for chat completion via the provider.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// Answerer generates answers grounded in retrieved passages.
type Answerer struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewAnswerer creates an Answerer using the given chat client and model
// name. timeout bounds each completion call (<= 0 uses a 30s default).
func NewAnswerer(client Chatter, model string, timeout time.Duration) *Answerer {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Answerer{client: client, model: model, timeout: timeout}
}

// Answer attempts to answer the question from the given passages. With no
// passages it short-circuits to Insufficient without calling the provider:
// there is no context to ground an answer in. A provider failure is a
// *GenerationError, never an Insufficient result.
func (a *Answerer) Answer(ctx context.Context, question string, passages []retrieval.Passage) (Result, error) {
	if len(passages) == 0 {
		return Result{Status: Insufficient}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.client.Chat(ctx, a.model, buildMessages(question, passages), nil)
	if err != nil {
		return Result{}, &GenerationError{Err: err}
	}

	text := strings.TrimSpace(raw)
	if isNoAnswer(text) {
		return Result{Status: Insufficient}, nil
	}
	if text == "" {
		return Result{}, &GenerationError{Err: fmt.Errorf("empty completion response")}
	}

	return Result{
		Status:  Grounded,
		Text:    text,
		Sources: sources(passages),
	}, nil
}

func buildMessages(question string, passages []retrieval.Passage) []llm.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nContext:\n", question)
	for _, p := range passages {
		fmt.Fprintf(&sb, "[Source: %s]\n%s\n\n", p.Source, p.Text)
	}

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: strings.TrimRight(sb.String(), "\n")},
	}
}

// isNoAnswer matches the sentinel token, tolerating trailing punctuation the
// model sometimes appends.
func isNoAnswer(text string) bool {
	return strings.TrimRight(text, ".!?") == noAnswerToken
}

// sources returns the distinct source documents of the passages, preserving
// first-seen (ingestion) order.
func sources(passages []retrieval.Passage) []string {
	seen := make(map[string]bool, len(passages))
	var out []string
	for _, p := range passages {
		if p.Source == "" || seen[p.Source] {
			continue
		}
		seen[p.Source] = true
		out = append(out, p.Source)
	}
	return out
}
