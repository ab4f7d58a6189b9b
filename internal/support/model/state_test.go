package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func completeDetails() map[string]string {
	return map[string]string{
		DetailLocation:          "12 Rue des Lilas, Lyon",
		DetailDescription:       "no power since this morning",
		DetailOccurrence:        "constant",
		DetailAvailability:      "weekday afternoons",
		DetailContactPreference: "phone",
	}
}

func TestApply_DetailsMergeIsMonotonic(t *testing.T) {
	st := NewConversationState("c1")

	st.Apply(Patch{Details: map[string]string{DetailLocation: "Lyon", DetailPriority: "High"}})
	assert.Equal(t, "Lyon", st.Details[DetailLocation])

	t.Run("empty extraction never clears a field", func(t *testing.T) {
		st.Apply(Patch{Details: map[string]string{DetailLocation: "", DetailDescription: "outage"}})
		assert.Equal(t, "Lyon", st.Details[DetailLocation])
		assert.Equal(t, "outage", st.Details[DetailDescription])
	})

	t.Run("non-empty value overwrites", func(t *testing.T) {
		st.Apply(Patch{Details: map[string]string{DetailLocation: "Paris"}})
		assert.Equal(t, "Paris", st.Details[DetailLocation])
	})
}

func TestApply_AllDetailsGivenRequiresMandatoryFields(t *testing.T) {
	st := NewConversationState("c1")

	st.Apply(Patch{
		Details:         map[string]string{DetailLocation: "Lyon"},
		AllDetailsGiven: true,
	})
	assert.False(t, st.AllDetailsGiven, "claim with gaps must be ignored")

	st.Apply(Patch{Details: completeDetails(), AllDetailsGiven: true})
	assert.True(t, st.AllDetailsGiven)

	t.Run("sticky until cycle reset", func(t *testing.T) {
		st.Apply(Patch{AllDetailsGiven: false})
		assert.True(t, st.AllDetailsGiven)
	})
}

func TestApply_StageFlagsOnlySetTrue(t *testing.T) {
	st := NewConversationState("c1")

	st.Apply(Patch{SummaryShown: true, KnowledgeConsulted: true, ConfirmationAsked: true})
	assert.True(t, st.SummaryShown)
	assert.True(t, st.KnowledgeConsulted)
	assert.True(t, st.ConfirmationAsked)

	st.Apply(Patch{})
	assert.True(t, st.SummaryShown)
	assert.True(t, st.KnowledgeConsulted)
	assert.True(t, st.ConfirmationAsked)
}

func TestApply_RecentTicketIDPointerSemantics(t *testing.T) {
	st := NewConversationState("c1")

	st.Apply(Patch{RecentTicketID: StringPtr("INC0012345")})
	assert.Equal(t, "INC0012345", st.RecentTicketID)

	t.Run("nil leaves the id alone", func(t *testing.T) {
		st.Apply(Patch{})
		assert.Equal(t, "INC0012345", st.RecentTicketID)
	})

	t.Run("pointer to empty clears", func(t *testing.T) {
		st.Apply(Patch{RecentTicketID: StringPtr("")})
		assert.Empty(t, st.RecentTicketID)
	})
}

func TestApply_CycleReset(t *testing.T) {
	st := NewConversationState("c1")
	st.Apply(Patch{
		Details:            completeDetails(),
		AllDetailsGiven:    true,
		SummaryShown:       true,
		KnowledgeConsulted: true,
		ConfirmationAsked:  true,
	})

	st.Apply(Patch{RecentTicketID: StringPtr("INC0099"), Intent: IntentChat, CycleReset: true})

	assert.False(t, st.AllDetailsGiven)
	assert.False(t, st.SummaryShown)
	assert.False(t, st.KnowledgeConsulted)
	assert.False(t, st.ConfirmationAsked)
	// The reset clears the cycle flags, not the record of what happened.
	assert.Equal(t, "INC0099", st.RecentTicketID)
	assert.Equal(t, "no power since this morning", st.Details[DetailDescription])
}

func TestApply_MessagesAppendOnly(t *testing.T) {
	st := NewConversationState("c1")
	st.Apply(Patch{Messages: []Message{HumanMessage("hello")}})
	st.Apply(Patch{Messages: []Message{AIMessage("hi, how can I help?")}})

	assert.Len(t, st.Messages, 2)
	assert.Equal(t, RoleHuman, st.Messages[0].Role)
	assert.Equal(t, RoleAI, st.Messages[1].Role)
}

func TestDetailPatch_DropsEmptyFields(t *testing.T) {
	out := TriageOutput{
		ExtractedLocation: "Lyon",
		ExtractedPriority: "",
		ExtractedEmail:    "jo@example.com",
	}
	patch := out.DetailPatch()
	assert.Equal(t, map[string]string{
		DetailLocation: "Lyon",
		DetailEmail:    "jo@example.com",
	}, patch)
}

func TestParseIntent_UnknownCoercesToChat(t *testing.T) {
	assert.Equal(t, IntentEscalate, ParseIntent("escalate"))
	assert.Equal(t, IntentChat, ParseIntent("banana"))
	assert.Equal(t, IntentChat, ParseIntent(""))
}

func TestTailTurns(t *testing.T) {
	msgs := []Message{HumanMessage("1"), AIMessage("2"), HumanMessage("3")}
	assert.Len(t, TailTurns(msgs, 2), 2)
	assert.Equal(t, "2", TailTurns(msgs, 2)[0].Content)
	assert.Len(t, TailTurns(msgs, 10), 3)
}
