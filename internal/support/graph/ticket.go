package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
	logx "github.com/gridassist/server/pkg/logger"
)

var incidentIDPattern = regexp.MustCompile(`INC\d+`)

const (
	shortDescriptionLimit = 77
	errorHintLimit        = 200
	historyTurnsForTicket = 5
)

// runTicket handles both branches of the ticket node: listing the user's
// incidents, or creating one after the confirmed escalation.
func (e *Engine) runTicket(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	if st.Intent == model.IntentLookup {
		return e.runTicketLookup(ctx, st, deps)
	}
	return e.runTicketCreation(ctx, st, deps)
}

func (e *Engine) runTicketLookup(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   workers.NameTicketing,
		"status":  "processing",
		"message": "Ticketing: Fetching your tickets...",
	})

	userMsg, _ := model.LastByRole(st.Messages, model.RoleHuman)
	out, _, err := workers.RunInto[model.TicketOutput](ctx, e.workers.Ticketing, userMsg.Content, deps)
	if err != nil {
		// Read path: degrade to a polite miss instead of failing the turn.
		logx.Error().Err(err).Str("conversation_id", st.ConversationID).Msg("ticket lookup failed")
		return model.Patch{
			Messages: []model.Message{model.AIMessage("I couldn't retrieve your tickets right now. Please try again in a moment.")},
		}, nil
	}

	reply := strings.TrimSpace(out.LookupSummary)
	if reply == "" {
		reply = "I couldn't find any tickets for your account."
	}
	return model.Patch{Messages: []model.Message{model.AIMessage(reply)}}, nil
}

// creationData is the structured payload handed to the ticketing worker.
type creationData struct {
	Email            string `json:"email"`
	Priority         string `json:"priority"`
	Category         string `json:"category"`
	Location         string `json:"location"`
	ShortDescription string `json:"short_description"`
	Description      string `json:"description"`
	Occurrence       string `json:"occurrence"`
	Availability     string `json:"availability"`
	ContactMethod    string `json:"contact_method"`
}

func (e *Engine) runTicketCreation(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   workers.NameTicketing,
		"status":  "processing",
		"message": "Ticketing: Initiating ticket creation...",
	})

	email := st.Detail(model.DetailEmail, "")
	if email == "" {
		email = st.CustomerEmail
	}
	if email == "" {
		email = deps.UserEmail
	}

	description := st.Detail(model.DetailDescription, "")
	shortDesc := st.Detail(model.DetailShortDescription, "")
	if shortDesc == "" {
		shortDesc = description
	}
	if shortDesc == "" {
		shortDesc = "Support Request"
	}
	if len(shortDesc) > shortDescriptionLimit {
		shortDesc = shortDesc[:shortDescriptionLimit] + "..."
	}

	data := creationData{
		Email:            email,
		Priority:         st.Detail(model.DetailPriority, "Medium"),
		Category:         st.Detail(model.DetailCategory, ""),
		Location:         st.Detail(model.DetailLocation, ""),
		ShortDescription: shortDesc,
		Description:      description,
		Occurrence:       st.Detail(model.DetailOccurrence, ""),
		Availability:     st.Detail(model.DetailAvailability, ""),
		ContactMethod:    st.Detail(model.DetailContactPreference, ""),
	}
	dataJSON, _ := json.Marshal(data)

	history := model.TailTurns(st.Messages, historyTurnsForTicket)
	historyJSON, _ := json.Marshal(history)

	instruction := fmt.Sprintf("ACTION: Create the ticket now.\nDATA: %s\nHISTORY CONTEXT: %s", dataJSON, historyJSON)

	out, res, err := workers.RunInto[model.TicketOutput](ctx, e.workers.Ticketing, instruction, deps)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", st.ConversationID).Msg("ticketing worker output unusable")
	}

	incidentID := ""
	serviceNowID := ""
	if out != nil {
		incidentID = strings.TrimSpace(out.IncidentID)
		serviceNowID = strings.TrimSpace(out.ServiceNowID)
	}
	if incidentID == "" {
		incidentID = serviceNowID
	}
	if (incidentID == "" || strings.EqualFold(incidentID, "UNKNOWN")) && res != nil {
		// Output parsing lost the id; the tool result in the trail still
		// carries it.
		for i := len(res.Trail) - 1; i >= 0; i-- {
			if m := incidentIDPattern.FindString(res.Trail[i].Content); m != "" {
				incidentID = m
				break
			}
		}
	}
	if serviceNowID == "" {
		serviceNowID = incidentID
	}

	if incidentID == "" || strings.EqualFold(incidentID, "UNKNOWN") {
		hint := ""
		if res != nil {
			parts := make([]string, 0, len(res.Trail))
			for _, m := range res.Trail {
				if m.Content != "" {
					parts = append(parts, m.Content)
				}
			}
			hint = strings.Join(parts, " ")
		}
		if len(hint) > errorHintLimit {
			hint = hint[:errorHintLimit]
		}
		logx.Error().
			Str("conversation_id", st.ConversationID).
			Str("hint", hint).
			Msg("ticket creation produced no incident id")

		msg := "I'm sorry, there was an issue with the ticket system and the ticket was not created. Your details are saved - please try again."
		if hint != "" {
			msg = fmt.Sprintf("%s (%s)", msg, hint)
		}
		// Gathered details survive so the retry needs no re-entry; the stale
		// ticket reference is dropped so routing ends the turn.
		return model.Patch{
			Messages:       []model.Message{model.AIMessage(msg)},
			RecentTicketID: model.StringPtr(""),
		}, nil
	}

	e.events.Publish(st.ConversationID, services.EventToolCall, map[string]any{
		"tool":   "ticket_creation",
		"status": "completed",
		"output": map[string]any{"incident_id": incidentID, "servicenow_id": serviceNowID},
	})

	reply := fmt.Sprintf(
		"Ticket **%s** has been created successfully!\nServiceNow ID: %s\n\nI have successfully created the ticket for you. Do you need anything else?",
		incidentID, serviceNowID,
	)

	return model.Patch{
		Messages:       []model.Message{model.AIMessage(reply)},
		RecentTicketID: model.StringPtr(incidentID),
		Intent:         model.IntentChat,
		CycleReset:     true,
	}, nil
}
