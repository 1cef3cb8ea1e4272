// Package triage classifies service-desk requests into one of three intents:
// answer from the policy corpus, ask the user for more information, or open
// a formal ticket.
package triage

import "fmt"

// Decision is the triage intent label.
type Decision string

const (
	AutoResolve Decision = "AUTO_RESOLVE"
	RequestInfo Decision = "REQUEST_INFO"
	OpenTicket  Decision = "OPEN_TICKET"
)

// Urgency is the classifier's urgency estimate for the request.
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
)

// Result is the structured triage outcome for one request. Immutable once
// produced.
type Result struct {
	Decision      Decision
	Urgency       Urgency
	MissingFields []string // non-empty iff Decision is RequestInfo
}

// ClassificationError reports triage output that could not be mapped to a
// valid decision. The classifier never guesses: an unparseable completion is
// surfaced so the decision flow can take its safe escalation path.
type ClassificationError struct {
	Raw string // the completion output that failed to parse
	Err error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifying request: %v", e.Err)
	}
	return fmt.Sprintf("classifying request: invalid triage output %q", truncate(e.Raw, 120))
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
