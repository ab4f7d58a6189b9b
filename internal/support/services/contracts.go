// Package services defines the capability contracts the support graph
// consumes, plus the in-process implementations the core itself owns
// (idempotent ticket creation, progress event bus). Backends such as the
// ticketing system, knowledge search and user storage are external
// collaborators implemented elsewhere against these interfaces.
package services

import (
	"context"
	"time"

	"github.com/gridassist/server/internal/support/model"
)

// Snippet is one ranked knowledge-base result.
type Snippet struct {
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// KnowledgeSearcher returns ranked text snippets for a query. An empty slice
// is a valid answer.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]Snippet, error)
}

// WebResult is one web-search hit.
type WebResult struct {
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// WebSearcher performs a live web search for outage/weather context.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]WebResult, error)
}

// CreateTicketInput carries everything the ticketing backend needs for a new
// incident.
type CreateTicketInput struct {
	Subject     string
	Description string
	Priority    string
	Email       string
	CallerName  string
	Category    string
	ContactType string
}

// TicketRecord is the backend's view of an incident.
type TicketRecord struct {
	Number           string
	ShortDescription string
	Description      string
	State            string
	Priority         string
	Email            string
	Category         string
}

// TicketFilters narrows bulk incident queries.
type TicketFilters struct {
	Status   string
	Priority string
	Query    string
	Limit    int
}

// TicketStore is the ticketing backend contract. Get returns (nil, nil) when
// the incident does not exist.
type TicketStore interface {
	Create(ctx context.Context, in CreateTicketInput) (string, error)
	Get(ctx context.Context, number string) (*TicketRecord, error)
	ListForUser(ctx context.Context, email string, f TicketFilters) ([]TicketRecord, error)
	AddNote(ctx context.Context, number, text string, internal bool) error
	UpdateFields(ctx context.Context, number string, fields map[string]string) error
	Resolve(ctx context.Context, number, note string) error
	Delete(ctx context.Context, number string) error
}

// UserStore resolves stored user profiles. Get returns (nil, nil) for an
// unknown id.
type UserStore interface {
	Get(ctx context.Context, id string) (*model.UserProfile, error)
}

// Event is one progress notification on the side channel.
type Event struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Type           string         `json:"type"`
	Payload        map[string]any `json:"data"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Event types emitted by the graph and the worker tools.
const (
	EventAgentActive = "agent_active"
	EventToolCall    = "tool_call"
)

// EventSink receives progress events. Publish must never block the main
// execution path; delivery is best-effort, at-most-once, per-conversation
// FIFO.
type EventSink interface {
	Publish(conversationID, eventType string, payload map[string]any)
}

// CheckpointStore persists ConversationState between turns. Load returns
// (nil, nil) when no checkpoint exists yet.
type CheckpointStore interface {
	Load(ctx context.Context, conversationID string) (*model.ConversationState, error)
	Save(ctx context.Context, state *model.ConversationState) error
}
