package graph

import (
	"context"
	"fmt"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
	logx "github.com/gridassist/server/pkg/logger"
)

const diagnosticNoteHeader = "NEURAL DIAGNOSTIC REPORT:\n\n"

// runDiagnostic enriches a freshly created incident with an automated
// analysis. It never produces a user-facing message; every failure here is
// logged and swallowed so the customer's confirmation stands untouched.
func (e *Engine) runDiagnostic(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	ticketID := st.RecentTicketID
	if ticketID == "" {
		return model.Patch{}, nil
	}

	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   workers.NameDiagnostic,
		"status":  "processing",
		"message": "Diagnostics: Running analysis on " + ticketID + "...",
	})

	issue := st.Detail(model.DetailDescription, "Unknown issue")
	if e.tickets != nil {
		rec, err := e.tickets.Get(ctx, ticketID)
		switch {
		case err != nil:
			logx.Warn().Err(err).Str("ticket_id", ticketID).Msg("could not fetch incident for diagnostics, using stored description")
		case rec != nil && rec.Description != "":
			issue = rec.Description
		}
	}

	location := st.Address
	if location == "" {
		location = st.Detail(model.DetailLocation, "Unknown location")
	}

	instruction := fmt.Sprintf(
		"Analyze incident %s.\nIssue: %s\nUser location: %s\nPrior guidance from the knowledge base: %s\n\nProduce the diagnostic report.",
		ticketID, issue, location, orDefault(st.KnowledgeAdvice, "none"),
	)

	report, err := e.workers.Diagnostic.RunText(ctx, instruction, deps)
	if err != nil {
		logx.Error().Err(err).Str("ticket_id", ticketID).Msg("diagnostic worker failed, skipping report")
		return model.Patch{}, nil
	}

	if e.tickets == nil {
		return model.Patch{}, nil
	}
	if err := e.tickets.AddNote(ctx, ticketID, diagnosticNoteHeader+report, true); err != nil {
		logx.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to attach diagnostic work note")
	}
	// State 2 marks the incident as in progress with the analysis attached.
	if err := e.tickets.UpdateFields(ctx, ticketID, map[string]string{
		"u_ai_analysis": report,
		"state":         "2",
	}); err != nil {
		logx.Error().Err(err).Str("ticket_id", ticketID).Msg("failed to update incident analysis fields")
	}

	return model.Patch{}, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
