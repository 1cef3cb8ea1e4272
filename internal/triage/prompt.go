package triage

import (
	"fmt"
	"strings"

	"github.com/carraro/deskflow/internal/llm"
)

const systemPrompt = `You are a service-desk triage engine for internal company policies (HR/IT). Given the user's message, output ONLY a single valid JSON object conforming to the provided schema. No prose, no markdown.

Decisions:
- "AUTO_RESOLVE": clear questions about rules or procedures described in the policies (e.g. "Can I expense my home-office internet?", "How does the travel meal policy work?"). Urgency is usually LOW.
- "REQUEST_INFO": vague messages missing the information needed to identify the topic or context (e.g. "I need help with a policy", "I have a general question"). Urgency is MEDIUM. List the specific missing fields the user must supply.
- "OPEN_TICKET": requests for exceptions, approvals, releases, or special access, or when the user explicitly asks to open a ticket (e.g. "I want an exception to work 5 days remote.", "Please open a ticket with HR."). Urgency is usually HIGH.

Analyze the message and choose the most appropriate decision.`

const retriageInstruction = `

A direct answer from the policy documents was already attempted and failed: "AUTO_RESOLVE" is NOT available. Choose only between "REQUEST_INFO" and "OPEN_TICKET".`

// BuildPrompt constructs the chat messages for a triage call.
// transcriptContext carries the serialized conversation so far (may be
// empty on the first turn). When constrained is true the instruction set
// excludes AUTO_RESOLVE (fallback re-triage).
func BuildPrompt(query, transcriptContext string, constrained bool) []llm.Message {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if constrained {
		sb.WriteString(retriageInstruction)
	}
	if transcriptContext != "" {
		fmt.Fprintf(&sb, "\n\n[Conversation so far]\n%s", transcriptContext)
	}

	return []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: query},
	}
}

// triageSchema returns the JSON schema constraining triage output.
// When constrained is true, AUTO_RESOLVE is removed from the decision enum.
func triageSchema(constrained bool) *llm.Schema {
	decisions := []string{string(AutoResolve), string(RequestInfo), string(OpenTicket)}
	if constrained {
		decisions = []string{string(RequestInfo), string(OpenTicket)}
	}
	return &llm.Schema{
		Type: "object",
		Properties: map[string]llm.SchemaProperty{
			"decision": {Type: "string", Enum: decisions, Description: "Triage decision"},
			"urgency":  {Type: "string", Enum: []string{string(UrgencyLow), string(UrgencyMedium), string(UrgencyHigh)}, Description: "Urgency estimate"},
			"missing_fields": {
				Type:        "array",
				Description: "Fields or information missing from the user's message (REQUEST_INFO only)",
				Items:       &llm.SchemaProperty{Type: "string"},
			},
		},
		Required: []string{"decision", "urgency", "missing_fields"},
	}
}
