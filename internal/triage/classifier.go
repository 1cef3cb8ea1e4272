package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/carraro/deskflow/internal/llm"
)

const defaultTimeout = 15 * time.Second

// Chatter is the interface for chat completion via the provider.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// Classifier turns raw user requests into structured triage results.
// Stateless across invocations aside from the transcript context passed in.
type Classifier struct {
	client  Chatter
	model   string
	timeout time.Duration
}

// NewClassifier creates a Classifier using the given chat client and model
// name. timeout bounds each classification call (<= 0 uses a 15s default).
func NewClassifier(client Chatter, model string, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Classifier{client: client, model: model, timeout: timeout}
}

// Classify triages the request. transcriptContext may be empty (first turn).
// Failures are *ClassificationError — callers route them to the safe
// escalation path, never retry them.
func (c *Classifier) Classify(ctx context.Context, query, transcriptContext string) (Result, error) {
	return c.classify(ctx, query, transcriptContext, false)
}

// Retriage re-classifies after a failed grounded-answer attempt, choosing
// only between RequestInfo and OpenTicket. An AUTO_RESOLVE decision coming
// back from the constrained call is itself a ClassificationError.
func (c *Classifier) Retriage(ctx context.Context, query, transcriptContext string) (Result, error) {
	return c.classify(ctx, query, transcriptContext, true)
}

// rawResult mirrors the JSON the model is constrained to emit.
type rawResult struct {
	Decision      string   `json:"decision"`
	Urgency       string   `json:"urgency"`
	MissingFields []string `json:"missing_fields"`
}

func (c *Classifier) classify(ctx context.Context, query, transcriptContext string, constrained bool) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, &ClassificationError{Err: fmt.Errorf("empty request text")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := BuildPrompt(query, transcriptContext, constrained)

	raw, err := c.client.Chat(ctx, c.model, messages, triageSchema(constrained))
	if err != nil {
		return Result{}, &ClassificationError{Err: fmt.Errorf("completion call failed: %w", err)}
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Result{}, &ClassificationError{Raw: raw, Err: fmt.Errorf("unmarshaling triage output: %w", err)}
	}

	result := Result{
		Decision:      Decision(parsed.Decision),
		Urgency:       Urgency(parsed.Urgency),
		MissingFields: parsed.MissingFields,
	}

	switch result.Decision {
	case AutoResolve:
		if constrained {
			return Result{}, &ClassificationError{Raw: raw, Err: fmt.Errorf("re-triage returned excluded decision AUTO_RESOLVE")}
		}
	case RequestInfo:
		if len(result.MissingFields) == 0 {
			return Result{}, &ClassificationError{Raw: raw, Err: fmt.Errorf("REQUEST_INFO without missing fields")}
		}
	case OpenTicket:
	default:
		return Result{}, &ClassificationError{Raw: raw}
	}

	switch result.Urgency {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
	case "":
		// Urgency is advisory; fall back to MEDIUM rather than failing triage.
		result.Urgency = UrgencyMedium
	default:
		return Result{}, &ClassificationError{Raw: raw, Err: fmt.Errorf("invalid urgency %q", parsed.Urgency)}
	}

	if result.Decision != RequestInfo {
		result.MissingFields = nil
	}

	return result, nil
}
