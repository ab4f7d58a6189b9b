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

// Fixed confirmation and fallback prompts, localized by keyword sniffing on
// the first user message.
var proceedPrompts = map[router.Language]string{
	router.LangEnglish: "Shall I proceed with creating the ticket for you?",
	router.LangFrench:  "Voulez-vous que je procède à la création du ticket ?",
	router.LangArabic:  "هل تريد أن أتابع إنشاء التذكرة لك؟",
}

var noInfoReplies = map[router.Language]string{
	router.LangEnglish: "I couldn't find specific information about that in our knowledge base. Could you tell me more about the issue?",
	router.LangFrench:  "Je n'ai pas trouvé d'information spécifique à ce sujet dans notre base de connaissances. Pouvez-vous m'en dire plus sur le problème ?",
	router.LangArabic:  "لم أجد معلومات محددة حول ذلك في قاعدة المعرفة لدينا. هل يمكنك إخباري المزيد عن المشكلة؟",
}

// expandQuery widens terse issue descriptions with domain keywords so the
// knowledge search matches outage and supply articles.
func expandQuery(issue, location string) string {
	q := issue
	lower := strings.ToLower(issue)
	switch {
	case strings.Contains(lower, "power") || strings.Contains(lower, "electric") || strings.Contains(lower, "outage") || strings.Contains(lower, "blackout"):
		q += " electricity outage troubleshooting"
	case strings.Contains(lower, "gas") || strings.Contains(lower, "leak") || strings.Contains(lower, "smell"):
		q += " gas supply safety"
	case strings.Contains(lower, "solar") || strings.Contains(lower, "panel") || strings.Contains(lower, "inverter"):
		q += " solar generation fault"
	case strings.Contains(lower, "meter") || strings.Contains(lower, "reading"):
		q += " meter equipment"
	case strings.Contains(lower, "bill") || strings.Contains(lower, "charge") || strings.Contains(lower, "invoice"):
		q += " billing consumption"
	}
	if location != "" {
		q += " near " + location
	}
	return q
}

// runKnowledge consults the knowledge base (and web) for the current issue.
// In the escalation path it caches the advice and asks the user to confirm
// ticket creation; in the informational path it answers directly.
func (e *Engine) runKnowledge(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   workers.NameKnowledge,
		"status":  "processing",
		"message": "Knowledge: Consulting the knowledge base...",
	})

	userMsg, _ := model.LastByRole(st.Messages, model.RoleHuman)

	var query string
	if st.Intent == model.IntentOutOfScope || st.Intent == model.IntentSystemHealth {
		query = userMsg.Content
	} else {
		issue := st.Detail(model.DetailDescription, userMsg.Content)
		query = expandQuery(issue, st.Detail(model.DetailLocation, ""))
	}

	advice, err := e.workers.Knowledge.RunText(ctx, query, deps)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", st.ConversationID).Msg("knowledge worker failed")
		advice = workers.ErrRetrievingInfo
	}
	advice = strings.TrimSpace(advice)

	lang := router.LangEnglish
	if first, ok := model.FirstByRole(st.Messages, model.RoleHuman); ok {
		lang = router.DetectLanguage(first.Content)
	}

	noInfo := advice == "" ||
		strings.Contains(advice, workers.NoInfoFound) ||
		strings.Contains(advice, workers.ErrRetrievingInfo)

	if st.Intent == model.IntentEscalate {
		// Escalation path: cache the advice for the diagnostic report and ask
		// for the go-ahead. A failed search still advances the cycle.
		cached := router.TruncateSentences(advice, 3)
		if noInfo {
			cached = "No specific guidance available"
		}
		var reply string
		if noInfo {
			reply = proceedPrompts[lang]
		} else {
			reply = fmt.Sprintf("%s\n\n%s", router.TruncateSentences(advice, 3), proceedPrompts[lang])
		}
		return model.Patch{
			Messages:           []model.Message{model.AIMessage(reply)},
			KnowledgeConsulted: true,
			ConfirmationAsked:  true,
			KnowledgeAdvice:    cached,
		}, nil
	}

	// Informational path: answer and end the turn.
	reply := router.TruncateSentences(advice, 3)
	if noInfo {
		reply = noInfoReplies[lang]
	}
	return model.Patch{
		Messages:           []model.Message{model.AIMessage(reply)},
		KnowledgeConsulted: true,
	}, nil
}
