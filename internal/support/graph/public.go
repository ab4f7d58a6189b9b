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

const publicFallbackReply = "I apologize, but I'm having trouble retrieving information right now. Please try again shortly."

// runPublic answers unauthenticated questions from the knowledge base and the
// web. No ticketing, no account actions.
func (e *Engine) runPublic(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   workers.NamePublic,
		"status":  "processing",
		"message": "Assistant: Looking that up...",
	})

	userMsg, ok := model.LastByRole(st.Messages, model.RoleHuman)
	if !ok {
		return model.Patch{}, fmt.Errorf("no user message in transcript")
	}

	var b strings.Builder
	if history := historyContext(st.Messages, e.historyLimit()); history != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(history)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User: %s", userMsg.Content)

	reply, err := e.workers.Public.RunText(ctx, b.String(), deps)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", st.ConversationID).Msg("public knowledge worker failed")
		reply = publicFallbackReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = publicFallbackReply
	}

	intent := model.IntentChat
	if router.IsFarewell(userMsg.Content) {
		intent = model.IntentEnd
	}

	return model.Patch{
		Messages: []model.Message{model.AIMessage(reply)},
		Intent:   intent,
	}, nil
}
