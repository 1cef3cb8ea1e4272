// Package flow runs one conversation turn through the triage state machine:
// classify, then answer from policy documents or escalate, with a single
// constrained re-triage as the fallback when classification or grounded
// answering fails.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carraro/deskflow/internal/answer"
	"github.com/carraro/deskflow/internal/retrieval"
	"github.com/carraro/deskflow/internal/session"
	"github.com/carraro/deskflow/internal/storage"
	"github.com/carraro/deskflow/internal/triage"
)

// State is a position in the per-turn state machine.
type State int

const (
	StateStart State = iota
	StateTriaged
	StateAnswering
	StateAnswered
	StateFallbackTriage
	StateRequestingInfo
	StateTicketing
	StateEnd
)

var stateNames = map[State]string{
	StateStart:          "START",
	StateTriaged:        "TRIAGED",
	StateAnswering:      "ANSWERING",
	StateAnswered:       "ANSWERED",
	StateFallbackTriage: "FALLBACK_TRIAGE",
	StateRequestingInfo: "REQUESTING_INFO",
	StateTicketing:      "TICKETING",
	StateEnd:            "END",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Kind tags the terminal outcome of a turn.
type Kind string

const (
	Answered      Kind = "ANSWERED"
	InfoRequested Kind = "INFO_REQUESTED"
	TicketOpened  Kind = "TICKET_OPENED"
)

// Reason records why an escalation path was taken, for reporting to the
// user. Empty on the direct (non-fallback) paths.
type Reason string

const (
	ReasonInsufficientContext  Reason = "insufficient_context"
	ReasonGenerationFailed     Reason = "generation_failed"
	ReasonClassificationFailed Reason = "classification_failed"
	ReasonFallbackFailed       Reason = "fallback_failed"
)

// Outcome is the single terminal result of a turn. Exactly one of Answer,
// MissingFields, Ticket is populated, matching Kind.
type Outcome struct {
	Kind          Kind            `json:"kind"`
	Answer        *answer.Result  `json:"answer,omitempty"`
	MissingFields []string        `json:"missing_fields,omitempty"`
	Ticket        *storage.Ticket `json:"ticket,omitempty"`
	Reason        Reason          `json:"reason,omitempty"`
}

// Message renders the outcome as user-facing text, suitable for appending
// to the transcript and for chat surfaces.
func (o Outcome) Message() string {
	switch o.Kind {
	case Answered:
		if len(o.Answer.Sources) == 0 {
			return o.Answer.Text
		}
		return fmt.Sprintf("%s\n\nSources: %s", o.Answer.Text, strings.Join(o.Answer.Sources, ", "))
	case InfoRequested:
		return fmt.Sprintf("To move forward, please provide: %s.", strings.Join(o.MissingFields, ", "))
	case TicketOpened:
		return fmt.Sprintf("Ticket %s opened (urgency %s). The service desk will follow up.", o.Ticket.ID, o.Ticket.Urgency)
	}
	return ""
}

// Triager classifies a request, either openly or constrained to the
// escalation decisions.
type Triager interface {
	Classify(ctx context.Context, query, transcriptContext string) (triage.Result, error)
	Retriage(ctx context.Context, query, transcriptContext string) (triage.Result, error)
}

// Retriever searches the policy index. Empty results are normal.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topK int) []retrieval.Passage
}

// Answerer produces a grounded answer from passages.
type Answerer interface {
	Answer(ctx context.Context, question string, passages []retrieval.Passage) (answer.Result, error)
}

// TicketStore persists escalation tickets.
type TicketStore interface {
	SaveTicket(t storage.Ticket) error
}

// Flow orchestrates one turn. Safe for concurrent use across sessions:
// it holds no per-conversation state.
type Flow struct {
	triager   Triager
	retriever Retriever
	answerer  Answerer
	tickets   TicketStore
	topK      int
	logger    *slog.Logger
}

// New wires a Flow. topK bounds retrieval per question (<= 0 uses 4).
func New(triager Triager, retriever Retriever, answerer Answerer, tickets TicketStore, topK int, logger *slog.Logger) *Flow {
	if topK <= 0 {
		topK = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		triager:   triager,
		retriever: retriever,
		answerer:  answerer,
		tickets:   tickets,
		topK:      topK,
		logger:    logger,
	}
}

// Run executes one turn for the given request text. The request and the
// terminal outcome are appended to the session transcript; the session
// resets to a fresh start for the next message. Turns on the same session
// are serialized: a concurrent Run for the same session waits its turn.
//
// Every turn ends in exactly one outcome. Classification and generation
// failures are absorbed into the escalation path; the only error Run
// surfaces is a ticket-persistence failure.
func (f *Flow) Run(ctx context.Context, sess *session.Session, query, requester string) (Outcome, error) {
	sess.LockTurn()
	defer sess.UnlockTurn()

	transcript := sess.Context()
	sess.Append(session.RoleUser, query)

	outcome, err := f.run(ctx, query, requester, sess.ID(), transcript)
	if err != nil {
		return Outcome{}, err
	}

	sess.Append(session.RoleAssistant, outcome.Message())
	return outcome, nil
}

// turn carries the mutable per-turn data the transitions act on.
type turn struct {
	query      string
	requester  string
	sessionID  string
	transcript string

	result triage.Result
	ans    answer.Result
	reason Reason
}

func (f *Flow) run(ctx context.Context, query, requester, sessionID, transcript string) (Outcome, error) {
	t := &turn{query: query, requester: requester, sessionID: sessionID, transcript: transcript}
	state := StateStart

	for state != StateEnd {
		next, outcome, err := f.step(ctx, state, t)
		if err != nil {
			return Outcome{}, err
		}
		f.logger.Debug("flow transition", "session", sessionID, "from", state, "to", next)
		if next == StateEnd {
			return outcome, nil
		}
		state = next
	}
	return Outcome{}, fmt.Errorf("flow ended without an outcome")
}

// step applies one transition. Terminal states return StateEnd together
// with the outcome.
func (f *Flow) step(ctx context.Context, state State, t *turn) (State, Outcome, error) {
	switch state {
	case StateStart:
		result, err := f.triager.Classify(ctx, t.query, t.transcript)
		if err != nil {
			// Guessing intent is worse than proceeding: a failed triage
			// routes to the constrained escalation choice instead.
			f.logger.Warn("triage failed, escalating", "session", t.sessionID, "error", err)
			t.reason = ReasonClassificationFailed
			return StateFallbackTriage, Outcome{}, nil
		}
		t.result = result
		return StateTriaged, Outcome{}, nil

	case StateTriaged:
		switch t.result.Decision {
		case triage.AutoResolve:
			return StateAnswering, Outcome{}, nil
		case triage.RequestInfo:
			return StateRequestingInfo, Outcome{}, nil
		default:
			return StateTicketing, Outcome{}, nil
		}

	case StateAnswering:
		passages := f.retriever.Retrieve(ctx, t.query, f.topK)
		ans, err := f.answerer.Answer(ctx, t.query, passages)
		if err != nil {
			f.logger.Warn("answer generation failed, re-triaging", "session", t.sessionID, "error", err)
			t.reason = ReasonGenerationFailed
			return StateFallbackTriage, Outcome{}, nil
		}
		if ans.Status == answer.Insufficient {
			t.reason = ReasonInsufficientContext
			return StateFallbackTriage, Outcome{}, nil
		}
		t.ans = ans
		return StateAnswered, Outcome{}, nil

	case StateFallbackTriage:
		result, err := f.triager.Retriage(ctx, t.query, t.transcript)
		if err != nil {
			// The fallback itself failed: ticketing is the deterministic
			// last resort, never a dropped request.
			f.logger.Warn("fallback re-triage failed, forcing ticket", "session", t.sessionID, "error", err)
			t.reason = ReasonFallbackFailed
			t.result = triage.Result{Decision: triage.OpenTicket, Urgency: triage.UrgencyMedium}
			return StateTicketing, Outcome{}, nil
		}
		t.result = result
		if result.Decision == triage.RequestInfo {
			return StateRequestingInfo, Outcome{}, nil
		}
		return StateTicketing, Outcome{}, nil

	case StateAnswered:
		ans := t.ans
		return StateEnd, Outcome{Kind: Answered, Answer: &ans}, nil

	case StateRequestingInfo:
		return StateEnd, Outcome{
			Kind:          InfoRequested,
			MissingFields: t.result.MissingFields,
			Reason:        t.reason,
		}, nil

	case StateTicketing:
		ticket := storage.Ticket{
			ID:        uuid.NewString(),
			SessionID: t.sessionID,
			Summary:   summarize(t.query),
			Requester: t.requester,
			Urgency:   string(t.result.Urgency),
			Status:    storage.TicketStatusOpen,
			CreatedAt: time.Now().UTC(),
		}
		if err := f.tickets.SaveTicket(ticket); err != nil {
			return StateEnd, Outcome{}, fmt.Errorf("saving ticket: %w", err)
		}
		f.logger.Info("ticket opened", "session", t.sessionID, "ticket", ticket.ID, "urgency", ticket.Urgency)
		return StateEnd, Outcome{Kind: TicketOpened, Ticket: &ticket, Reason: t.reason}, nil
	}

	return StateEnd, Outcome{}, fmt.Errorf("invalid flow state %v", state)
}

const maxSummaryLen = 200

func summarize(query string) string {
	runes := []rune(strings.TrimSpace(query))
	if len(runes) <= maxSummaryLen {
		return string(runes)
	}
	return string(runes[:maxSummaryLen]) + "…"
}
