// Package router holds the deterministic decision logic of the support graph:
// intent correction, response shaping, and the edge table. Everything here is
// a pure function over state and text so it can be tested without invoking
// any worker.
package router

import (
	"strings"

	"github.com/gridassist/server/internal/support/model"
)

// Lexicons driving the intent-correction rules. Matching is case-insensitive
// substring containment over the raw user message.
var (
	farewellWords = []string{"bye", "goodbye", "thanks", "thank you", "thank", "that's all", "nothing else"}

	// summaryAffirmWords accept the detail summary.
	summaryAffirmWords = []string{"yes", "ok", "correct", "right", "confirm", "good"}

	// proceedAffirmWords green-light ticket creation after the knowledge consult.
	proceedAffirmWords = []string{"yes", "ok", "proceed", "go ahead", "do it", "create", "please", "go"}

	// closingWords end the conversation once a ticket exists.
	closingWords = []string{"no", "thanks", "thank", "bye", "goodbye", "that is all", "nothing"}
)

func containsAny(msg string, words []string) bool {
	for _, w := range words {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// IsFarewell reports whether the message carries a closing token.
func IsFarewell(userMessage string) bool {
	return containsAny(strings.ToLower(userMessage), farewellWords)
}

// IntentInputs is everything the resolution rules look at: the worker's raw
// classification, the user's words, and the stage flags as they stood before
// this turn.
type IntentInputs struct {
	Raw             model.Intent
	UserMessage     string
	AllDetailsGiven bool
	SummaryShown    bool
	KnowledgeConsulted bool
	ConfirmationAsked  bool
	RecentTicketID     string
}

// IntentResolution is the outcome of the rule table.
type IntentResolution struct {
	Intent model.Intent
	// ShowSummary marks this as the turn that displays the detail summary;
	// the caller sets SummaryShown on the state.
	ShowSummary bool
	// SuppressMessage drops the triage acknowledgment so control passes
	// straight to ticket creation without an intermediate reply.
	SuppressMessage bool
}

// ResolveIntent post-processes the worker's raw intent through the
// priority-ordered correction rules. Earlier rules win; when none applies the
// raw intent stands.
func ResolveIntent(in IntentInputs) IntentResolution {
	msg := strings.ToLower(in.UserMessage)
	resolved := in.Raw

	switch {
	case containsAny(msg, farewellWords):
		resolved = model.IntentEnd

	case in.AllDetailsGiven && !in.SummaryShown && !in.KnowledgeConsulted:
		// Everything gathered, summary not yet shown: this turn shows it.
		resolved = model.IntentChat
		return finishResolution(in, resolved, true)

	case in.SummaryShown && !in.KnowledgeConsulted:
		affirmed := containsAny(msg, summaryAffirmWords)
		switch {
		case affirmed && resolved != model.IntentLookup && resolved != model.IntentOutOfScope &&
			resolved != model.IntentTechnical && resolved != model.IntentAnalyze:
			resolved = model.IntentEscalate
		case resolved == model.IntentChat || resolved == model.IntentEscalate:
			// Reply looks like a correction (or is unclear): stay in gathering
			// mode so fields may be overwritten. Deliberate conservative
			// default for ambiguous replies.
			resolved = model.IntentChat
		}

	case in.RecentTicketID != "" && resolved != model.IntentLookup:
		if containsAny(msg, closingWords) {
			resolved = model.IntentEnd
		}

	case in.ConfirmationAsked && in.KnowledgeConsulted:
		if containsAny(msg, proceedAffirmWords) && resolved != model.IntentLookup {
			// This is the turn that actually creates the ticket.
			resolved = model.IntentEscalate
		} else if resolved != model.IntentLookup {
			// Declined or unclear: stay in chat.
			resolved = model.IntentChat
		}

	case in.Raw == model.IntentEscalate && !in.KnowledgeConsulted:
		// Escalation enters the knowledge step first via the edge table.
		resolved = model.IntentEscalate
	}

	return finishResolution(in, resolved, false)
}

func finishResolution(in IntentInputs, resolved model.Intent, showSummary bool) IntentResolution {
	return IntentResolution{
		Intent:          resolved,
		ShowSummary:     showSummary,
		SuppressMessage: in.ConfirmationAsked && in.KnowledgeConsulted && resolved == model.IntentEscalate,
	}
}

// sentence caps for shaped replies; informational intents get more room.
const (
	sentenceLimit     = 5
	longSentenceLimit = 10
)

// SplitSentences cuts text on `.`, `!` and `?` boundaries, keeping the
// terminator with its sentence.
func SplitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			// Boundary only when followed by whitespace or end of text, so
			// "8.30am" or "v1.2" stays intact.
			if i == len(runes)-1 || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(b.String())
				if s != "" {
					out = append(out, s)
				}
				b.Reset()
			}
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// ShapeResponse trims a worker reply: at most one question sentence (the
// first), and a sentence budget of 5, raised to 10 for out_of_scope and
// technical intents which need longer informative answers.
func ShapeResponse(text string, intent model.Intent) string {
	sentences := SplitSentences(text)

	hasQuestion := false
	filtered := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if strings.Contains(s, "?") {
			if hasQuestion {
				continue
			}
			hasQuestion = true
		}
		filtered = append(filtered, s)
	}

	limit := sentenceLimit
	if intent == model.IntentOutOfScope || intent == model.IntentTechnical {
		limit = longSentenceLimit
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return strings.Join(filtered, " ")
}

// TruncateSentences keeps at most n leading sentences of text.
func TruncateSentences(text string, n int) string {
	sentences := SplitSentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return strings.Join(sentences, " ")
}
