package router

import (
	"github.com/gridassist/server/internal/support/model"
)

// Node names of the support state machine.
const (
	NodeCustomerSupport = "customer_support"
	NodeKnowledge       = "knowledge_agent"
	NodeTicket          = "ticket_agent"
	NodeAnalyze         = "analyze_agent"
	NodeIoT             = "iot_agent"
	NodePublic          = "public_knowledge"

	// Terminal ends the turn.
	Terminal = "terminal"
)

// RouteAfterTriage is the conditional edge out of customer_support. It is the
// single source of truth for the routing table; an analyze request without a
// recent ticket is a defined edge to terminal, not an error.
func RouteAfterTriage(s *model.ConversationState) string {
	if s.RecentTicketID != "" && s.Intent == model.IntentChat {
		return Terminal
	}

	switch s.Intent {
	case model.IntentEnd, model.IntentChat:
		return Terminal
	case model.IntentOutOfScope, model.IntentSystemHealth, model.IntentTechnical:
		return NodeKnowledge
	case model.IntentEscalate:
		if !s.KnowledgeConsulted {
			return NodeKnowledge
		}
		return NodeTicket
	case model.IntentAnalyze:
		if s.RecentTicketID != "" {
			return NodeAnalyze
		}
		return Terminal
	case model.IntentLookup:
		return NodeTicket
	default:
		return Terminal
	}
}

// RouteAfterTicket runs the silent diagnostic pass when a ticket was just
// created, otherwise ends the turn.
func RouteAfterTicket(s *model.ConversationState) string {
	if s.RecentTicketID != "" {
		return NodeAnalyze
	}
	return Terminal
}
