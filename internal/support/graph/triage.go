package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/router"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
	logx "github.com/gridassist/server/pkg/logger"
)

// triageFallbackReply closes a turn whose triage output never parsed; the
// conversation stays in gathering mode.
const triageFallbackReply = "I'm sorry, I had trouble understanding that. Could you rephrase?"

// historyContext renders prior turns role-prefixed for the triage prompt,
// newest last, excluding the message currently being answered.
func historyContext(messages []model.Message, limit int) string {
	if len(messages) == 0 {
		return ""
	}
	tail := model.TailTurns(messages[:len(messages)-1], limit)
	var b strings.Builder
	for _, m := range tail {
		role := "User"
		if m.Role == model.RoleAI {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}

// runTriage is the entry node of every support turn: classify intent, extract
// ticket details, correct the intent through the rule table and shape the
// reply.
func (e *Engine) runTriage(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   "support",
		"status":  "processing",
		"message": "Supervisor: Analyzing intent & delegating...",
	})

	userMsg, ok := model.LastByRole(st.Messages, model.RoleHuman)
	if !ok {
		return model.Patch{}, fmt.Errorf("no user message in transcript")
	}

	var b strings.Builder
	if len(st.Messages) <= 1 {
		b.WriteString(firstTurnFraming)
	}
	if history := historyContext(st.Messages, e.historyLimit()); history != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User: %s", userMsg.Content)

	out, _, err := workers.RunInto[model.TriageOutput](ctx, e.workers.Triage, b.String(), deps)
	if err != nil {
		// Off-schema output after retries: answer generically, stay in chat.
		logx.Warn().Err(err).Str("conversation_id", st.ConversationID).Msg("triage output unusable, falling back to chat")
		return model.Patch{
			Intent:   model.IntentChat,
			Messages: []model.Message{model.AIMessage(triageFallbackReply)},
		}, nil
	}

	raw := model.ParseIntent(out.Intent)
	details := out.DetailPatch()
	if deps.UserEmail != "" {
		details[model.DetailEmail] = deps.UserEmail
	}

	// Evaluate completeness on a scratch copy so the correction rules see the
	// post-merge picture without mutating real state outside Apply.
	scratch := *st
	scratch.Details = make(map[string]string, len(st.Details)+len(details))
	for k, v := range st.Details {
		scratch.Details[k] = v
	}
	scratch.Apply(model.Patch{Details: details, AllDetailsGiven: out.AllDetailsGiven})

	resolution := router.ResolveIntent(router.IntentInputs{
		Raw:                raw,
		UserMessage:        userMsg.Content,
		AllDetailsGiven:    scratch.AllDetailsGiven,
		SummaryShown:       st.SummaryShown,
		KnowledgeConsulted: st.KnowledgeConsulted,
		ConfirmationAsked:  st.ConfirmationAsked,
		RecentTicketID:     st.RecentTicketID,
	})

	logx.Debug().
		Str("conversation_id", st.ConversationID).
		Str("raw_intent", raw.String()).
		Str("resolved_intent", resolution.Intent.String()).
		Bool("show_summary", resolution.ShowSummary).
		Bool("suppress_message", resolution.SuppressMessage).
		Msg("triage resolved")

	patch := model.Patch{
		Intent:          resolution.Intent,
		Details:         details,
		AllDetailsGiven: out.AllDetailsGiven,
		SummaryShown:    resolution.ShowSummary,
		UserName:        deps.UserName,
		CustomerEmail:   deps.UserEmail,
		MobilePhone:     deps.UserPhone,
		Address:         deps.UserAddress,
		CurrentDate:     deps.CurrentDate,
	}

	// Entering a new summary cycle invalidates the previous ticket reference
	// so post-ticket routing never diagnoses a stale incident.
	if resolution.ShowSummary && st.RecentTicketID != "" {
		patch.RecentTicketID = model.StringPtr("")
	}

	if resolution.ShowSummary {
		patch.Messages = []model.Message{model.AIMessage(detailSummary(&scratch))}
	} else if !resolution.SuppressMessage {
		patch.Messages = []model.Message{model.AIMessage(router.ShapeResponse(out.Response, resolution.Intent))}
	}

	return patch, nil
}

// firstTurnFraming keeps the opening reply about the problem itself instead
// of account details.
const firstTurnFraming = "SYSTEM: This is the very first message. Focus ONLY on understanding the user's problem. Do not ask for personal or account information yet.\n\n"

// detailSummary renders the gathered details for the user to confirm before
// the escalation proceeds.
func detailSummary(st *model.ConversationState) string {
	rows := []struct{ label, key string }{
		{"Location", model.DetailLocation},
		{"Issue", model.DetailDescription},
		{"When it occurs", model.DetailOccurrence},
		{"Availability", model.DetailAvailability},
		{"Preferred contact", model.DetailContactPreference},
	}
	var b strings.Builder
	b.WriteString("Here is a summary of what I have:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "- %s: %s\n", r.label, st.Detail(r.key, "-"))
	}
	if p := st.Detail(model.DetailPriority, ""); p != "" {
		fmt.Fprintf(&b, "- Priority: %s\n", p)
	}
	b.WriteString("\nIs everything correct?")
	return b.String()
}

func (e *Engine) historyLimit() int {
	if e.conv.HistoryTurns > 0 {
		return e.conv.HistoryTurns
	}
	return 10
}
