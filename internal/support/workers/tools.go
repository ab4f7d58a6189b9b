package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/gridassist/server/internal/support/services"
	logx "github.com/gridassist/server/pkg/logger"
)

// Tool names exposed to the workers.
const (
	ToolSubmitTicket = "submit_ticket"
	ToolGetMyTickets = "get_my_tickets"
	ToolSearchKB     = "search_kb"
	ToolWebSearch    = "web_search"
)

// Sentinels the knowledge node keys on.
const (
	NoInfoFound       = "NO_SPECIFIC_INFO_FOUND"
	ErrRetrievingInfo = "ERROR_RETRIEVING_INFO"
)

// displayCategories maps customer-facing category labels onto the internal
// codes the ticketing backend expects. Unknown labels pass through.
var displayCategories = map[string]string{
	"Electricity - Network & Supply": "electricity_outage",
	"Meters & Equipment":             "hardware",
	"Gas - Supply & Safety":          "supply_safety",
	"Billing & Consumption":          "billing",
	"Inquiry":                        "inquiry",
}

// incidentStateLabels translates backend state codes for lookup summaries.
var incidentStateLabels = map[string]string{
	"1": "New",
	"2": "In Progress (AI Analyzed)",
	"3": "On Hold",
	"6": "Resolved",
	"7": "Closed",
	"8": "Canceled",
}

// Toolbox builds the eino tools the workers carry, bound to the concrete
// backends. Tools read the per-turn identity bundle from the context.
type Toolbox struct {
	Creator   *services.IdempotentTicketCreator
	Tickets   services.TicketStore
	Knowledge services.KnowledgeSearcher
	Web       services.WebSearcher
	Events    services.EventSink
}

type SubmitTicketInput struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Email       string `json:"email"`
	Category    string `json:"category,omitempty"`
	ContactType string `json:"contact_type,omitempty"`
}

type SubmitTicketOutput struct {
	IncidentID   string `json:"incident_id"`
	ServiceNowID string `json:"servicenow_id"`
	Status       string `json:"status"`
	Priority     string `json:"priority"`
	Email        string `json:"email"`
	Subject      string `json:"subject"`
}

// SubmitTicketTool creates an incident through the idempotent creator:
// repeats of the same (conversation, subject, priority) return the cached id.
func (tb *Toolbox) SubmitTicketTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSubmitTicket,
			Desc: "Submit a support ticket to the incident system and return the incident ID. Call at most once per confirmed issue.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"subject": {
					Type:     "string",
					Desc:     "Short subject line for the incident.",
					Required: true,
				},
				"description": {
					Type:     "string",
					Desc:     "Full issue description including location and occurrence time.",
					Required: true,
				},
				"priority": {
					Type:     "string",
					Desc:     "One of: Low, Medium, High, Critical.",
					Required: true,
				},
				"email": {
					Type:     "string",
					Desc:     "Customer contact email.",
					Required: true,
				},
				"category": {
					Type: "string",
					Desc: "Issue category. One of: inquiry, software, hardware, network, database, electricity_outage, billing, supply_safety.",
				},
				"contact_type": {
					Type: "string",
					Desc: "How the ticket was raised, e.g. Virtual Agent or iot.",
				},
			}),
		},
		func(ctx context.Context, in *SubmitTicketInput) (*SubmitTicketOutput, error) {
			deps := DepsFromContext(ctx)

			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolSubmitTicket,
				"status": "started",
				"input":  map[string]any{"subject": in.Subject, "priority": in.Priority, "email": in.Email},
			})

			category := in.Category
			if mapped, ok := displayCategories[category]; ok {
				category = mapped
			}
			if category == "" {
				category = "inquiry"
			}
			contactType := in.ContactType
			if contactType == "" {
				contactType = "Virtual Agent"
			}

			id, err := tb.Creator.Create(ctx, deps.ConversationID, services.CreateTicketInput{
				Subject:     in.Subject,
				Description: in.Description,
				Priority:    in.Priority,
				Email:       in.Email,
				CallerName:  deps.UserName,
				Category:    category,
				ContactType: contactType,
			})
			if err != nil {
				logx.Error().Err(err).Str("conversation_id", deps.ConversationID).Msg("ticket creation failed")
				tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
					"tool":   ToolSubmitTicket,
					"status": "failed",
					"output": map[string]any{"error": err.Error()},
				})
				return nil, err
			}

			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolSubmitTicket,
				"status": "completed",
				"output": map[string]any{"servicenow_id": id},
			})

			return &SubmitTicketOutput{
				IncidentID:   id,
				ServiceNowID: id,
				Status:       "submitted",
				Priority:     in.Priority,
				Email:        in.Email,
				Subject:      in.Subject,
			}, nil
		},
	)
}

type GetMyTicketsInput struct {
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

type GetMyTicketsOutput struct {
	Summary string `json:"summary"`
	Count   int    `json:"count"`
}

// GetMyTicketsTool lists the current user's incidents with human-readable
// state labels.
func (tb *Toolbox) GetMyTicketsTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetMyTickets,
			Desc: "List the current user's incidents from the ticket system.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"status": {
					Type: "string",
					Desc: "Optional status filter.",
				},
				"priority": {
					Type: "string",
					Desc: "Optional priority filter.",
				},
			}),
		},
		func(ctx context.Context, in *GetMyTicketsInput) (*GetMyTicketsOutput, error) {
			deps := DepsFromContext(ctx)
			if deps.UserEmail == "" {
				return &GetMyTicketsOutput{Summary: "You must be logged in with a valid email to view your tickets."}, nil
			}

			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolGetMyTickets,
				"status": "started",
			})

			records, err := tb.Tickets.ListForUser(ctx, deps.UserEmail, services.TicketFilters{
				Status:   in.Status,
				Priority: in.Priority,
				Limit:    20,
			})
			if err != nil {
				logx.Error().Err(err).Str("email", deps.UserEmail).Msg("failed to fetch user tickets")
				return nil, err
			}

			var b strings.Builder
			b.WriteString("### Your Incidents\n")
			if len(records) == 0 {
				fmt.Fprintf(&b, "No incidents found for email: %s.\n", deps.UserEmail)
			}
			for _, r := range records {
				label := incidentStateLabels[r.State]
				if label == "" {
					label = fmt.Sprintf("Unknown (%s)", r.State)
				}
				fmt.Fprintf(&b, "- **%s**: %s (%s)\n", r.Number, r.ShortDescription, label)
			}

			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolGetMyTickets,
				"status": "completed",
				"output": map[string]any{"count": len(records)},
			})
			return &GetMyTicketsOutput{Summary: b.String(), Count: len(records)}, nil
		},
	)
}

type SearchKBInput struct {
	Query string `json:"query"`
}

type SearchKBOutput struct {
	Results string `json:"results"`
}

// SearchKBTool queries the knowledge base and flattens the top snippets.
func (tb *Toolbox) SearchKBTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchKB,
			Desc: "Search the internal knowledge base for troubleshooting guidance.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Search keywords describing the issue.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *SearchKBInput) (*SearchKBOutput, error) {
			deps := DepsFromContext(ctx)
			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolSearchKB,
				"status": "started",
				"input":  map[string]any{"query": in.Query},
			})

			snippets, err := tb.Knowledge.Search(ctx, strings.TrimSpace(in.Query))
			if err != nil {
				logx.Error().Err(err).Str("query", in.Query).Msg("knowledge search failed")
				return &SearchKBOutput{Results: ErrRetrievingInfo}, nil
			}
			if len(snippets) == 0 {
				return &SearchKBOutput{Results: NoInfoFound}, nil
			}

			var b strings.Builder
			for i, s := range snippets {
				if i >= 3 {
					break
				}
				if s.Title != "" {
					fmt.Fprintf(&b, "%s: ", s.Title)
				}
				b.WriteString(strings.TrimSpace(s.Content))
				b.WriteString("\n")
			}

			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolSearchKB,
				"status": "completed",
				"output": map[string]any{"count": len(snippets)},
			})
			return &SearchKBOutput{Results: b.String()}, nil
		},
	)
}

type WebSearchInput struct {
	Query string `json:"query"`
}

type WebSearchOutput struct {
	Results string `json:"results"`
}

// WebSearchTool checks the live web for weather and regional outage context.
func (tb *Toolbox) WebSearchTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Search the web for current weather, regional outages, or unknown technical terms.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Web search query.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *WebSearchInput) (*WebSearchOutput, error) {
			deps := DepsFromContext(ctx)
			tb.Events.Publish(deps.ConversationID, services.EventToolCall, map[string]any{
				"tool":   ToolWebSearch,
				"status": "started",
				"input":  map[string]any{"query": in.Query},
			})

			results, err := tb.Web.Search(ctx, strings.TrimSpace(in.Query))
			if err != nil {
				logx.Error().Err(err).Str("query", in.Query).Msg("web search failed")
				return &WebSearchOutput{Results: ErrRetrievingInfo}, nil
			}
			if len(results) == 0 {
				return &WebSearchOutput{Results: NoInfoFound}, nil
			}

			var b strings.Builder
			for i, r := range results {
				if i >= 5 {
					break
				}
				fmt.Fprintf(&b, "- %s (%s)\n", strings.TrimSpace(r.Summary), r.URL)
			}
			return &WebSearchOutput{Results: b.String()}, nil
		},
	)
}
