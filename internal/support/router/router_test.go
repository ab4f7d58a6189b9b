package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gridassist/server/internal/support/model"
)

func TestResolveIntent_FarewellWinsOverEverything(t *testing.T) {
	res := ResolveIntent(IntentInputs{
		Raw:                model.IntentEscalate,
		UserMessage:        "Thanks, goodbye!",
		AllDetailsGiven:    true,
		SummaryShown:       true,
		KnowledgeConsulted: true,
		ConfirmationAsked:  true,
		RecentTicketID:     "INC0001",
	})
	assert.Equal(t, model.IntentEnd, res.Intent)
	assert.False(t, res.ShowSummary)
}

func TestResolveIntent_DetailsCompleteShowsSummary(t *testing.T) {
	res := ResolveIntent(IntentInputs{
		Raw:             model.IntentEscalate,
		UserMessage:     "I'm available weekday afternoons, call my mobile",
		AllDetailsGiven: true,
	})
	assert.Equal(t, model.IntentChat, res.Intent)
	assert.True(t, res.ShowSummary)
}

func TestResolveIntent_SummaryShownBranch(t *testing.T) {
	base := IntentInputs{
		Raw:             model.IntentChat,
		AllDetailsGiven: true,
		SummaryShown:    true,
	}

	t.Run("affirmation escalates", func(t *testing.T) {
		in := base
		in.UserMessage = "yes, that is correct"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentEscalate, res.Intent)
	})

	t.Run("correction stays in chat", func(t *testing.T) {
		in := base
		in.UserMessage = "actually the outage started last night, not this morning"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentChat, res.Intent)
	})

	t.Run("lookup is not hijacked", func(t *testing.T) {
		in := base
		in.Raw = model.IntentLookup
		in.UserMessage = "yes but first show me my open tickets"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentLookup, res.Intent)
	})
}

func TestResolveIntent_PostTicketClosing(t *testing.T) {
	base := IntentInputs{
		Raw:            model.IntentChat,
		RecentTicketID: "INC0042",
	}

	t.Run("closing word ends the conversation", func(t *testing.T) {
		in := base
		in.UserMessage = "no that is all"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentEnd, res.Intent)
	})

	t.Run("new question keeps chatting", func(t *testing.T) {
		in := base
		in.UserMessage = "how long until someone contacts me?"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentChat, res.Intent)
	})
}

func TestResolveIntent_ConfirmationStage(t *testing.T) {
	base := IntentInputs{
		Raw:                model.IntentChat,
		AllDetailsGiven:    true,
		SummaryShown:       true,
		KnowledgeConsulted: true,
		ConfirmationAsked:  true,
	}

	t.Run("go-ahead creates the ticket silently", func(t *testing.T) {
		in := base
		in.UserMessage = "go ahead please"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentEscalate, res.Intent)
		assert.True(t, res.SuppressMessage)
	})

	t.Run("decline stays in chat with a visible reply", func(t *testing.T) {
		in := base
		in.UserMessage = "actually hold off for now"
		res := ResolveIntent(in)
		assert.Equal(t, model.IntentChat, res.Intent)
		assert.False(t, res.SuppressMessage)
	})
}

func TestResolveIntent_RawStandsWhenNoRuleApplies(t *testing.T) {
	res := ResolveIntent(IntentInputs{
		Raw:         model.IntentTechnical,
		UserMessage: "why does my inverter show error E12?",
	})
	assert.Equal(t, model.IntentTechnical, res.Intent)
}

func TestSplitSentences_KeepsDecimalsIntact(t *testing.T) {
	got := SplitSentences("The outage started at 8.30am. Power returned briefly! Is it a grid fault?")
	assert.Equal(t, []string{
		"The outage started at 8.30am.",
		"Power returned briefly!",
		"Is it a grid fault?",
	}, got)
}

func TestShapeResponse(t *testing.T) {
	t.Run("one question max", func(t *testing.T) {
		in := "Got it. Where are you located? And when did it start? I can help."
		out := ShapeResponse(in, model.IntentChat)
		assert.Equal(t, "Got it. Where are you located? I can help.", out)
	})

	t.Run("five sentence cap for chat", func(t *testing.T) {
		in := "One. Two. Three. Four. Five. Six. Seven."
		out := ShapeResponse(in, model.IntentChat)
		assert.Equal(t, "One. Two. Three. Four. Five.", out)
	})

	t.Run("technical answers get more room", func(t *testing.T) {
		in := "One. Two. Three. Four. Five. Six. Seven."
		out := ShapeResponse(in, model.IntentTechnical)
		assert.Equal(t, in, out)
	})
}

func TestTruncateSentences(t *testing.T) {
	in := "First. Second. Third. Fourth."
	assert.Equal(t, "First. Second. Third.", TruncateSentences(in, 3))
	assert.Equal(t, in, TruncateSentences(in, 10))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, LangEnglish, DetectLanguage("my power is out"))
	assert.Equal(t, LangFrench, DetectLanguage("bonjour, j'ai une panne de courant"))
	assert.Equal(t, LangArabic, DetectLanguage("انقطع التيار الكهربائي، ماذا أفعل؟"))
}

func TestIsFarewell(t *testing.T) {
	assert.True(t, IsFarewell("Thanks, that's all"))
	assert.True(t, IsFarewell("goodbye"))
	assert.False(t, IsFarewell("my meter is broken"))
}
