package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// TicketStatus enumerates ticket lifecycle states. The decision flow only
// ever creates OPEN tickets; transitions belong to the downstream ticketing
// system.
type TicketStatus string

const TicketStatusOpen TicketStatus = "OPEN"

// Ticket is a formal escalation created by the decision flow.
type Ticket struct {
	ID        string
	SessionID string
	Summary   string
	Requester string
	Urgency   string
	Status    TicketStatus
	CreatedAt time.Time
}

// PolicyDoc is an ingested policy document awaiting or finished chunking
// and embedding.
type PolicyDoc struct {
	ID        string
	Title     string
	Content   string
	Source    string // "cli", "api", "mcp"
	Tags      string // JSON array stored as text
	CreatedAt time.Time
}

// Job is a queued unit of background work (currently only doc embedding).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
