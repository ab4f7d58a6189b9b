package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridassist/server/internal/support/model"
)

func TestRouteAfterTriage(t *testing.T) {
	cases := []struct {
		name  string
		state model.ConversationState
		want  string
	}{
		{"chat ends the turn", model.ConversationState{Intent: model.IntentChat}, Terminal},
		{"end ends the turn", model.ConversationState{Intent: model.IntentEnd}, Terminal},
		{"chat after a ticket ends the turn", model.ConversationState{Intent: model.IntentChat, RecentTicketID: "INC0001"}, Terminal},
		{"technical consults knowledge", model.ConversationState{Intent: model.IntentTechnical}, NodeKnowledge},
		{"out of scope consults knowledge", model.ConversationState{Intent: model.IntentOutOfScope}, NodeKnowledge},
		{"system health consults knowledge", model.ConversationState{Intent: model.IntentSystemHealth}, NodeKnowledge},
		{"escalate before consult goes to knowledge", model.ConversationState{Intent: model.IntentEscalate}, NodeKnowledge},
		{"escalate after consult goes to ticketing", model.ConversationState{Intent: model.IntentEscalate, KnowledgeConsulted: true}, NodeTicket},
		{"lookup goes to ticketing", model.ConversationState{Intent: model.IntentLookup}, NodeTicket},
		{"analyze with a ticket goes to diagnostics", model.ConversationState{Intent: model.IntentAnalyze, RecentTicketID: "INC0001"}, NodeAnalyze},
		{"analyze without a ticket ends the turn", model.ConversationState{Intent: model.IntentAnalyze}, Terminal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, RouteAfterTriage(&tc.state))
		})
	}
}

func TestRouteAfterTicket(t *testing.T) {
	t.Run("created ticket triggers diagnostics", func(t *testing.T) {
		st := model.ConversationState{RecentTicketID: "INC0001"}
		assert.Equal(t, NodeAnalyze, RouteAfterTicket(&st))
	})

	t.Run("no ticket ends the turn", func(t *testing.T) {
		st := model.ConversationState{}
		assert.Equal(t, Terminal, RouteAfterTicket(&st))
	})
}
