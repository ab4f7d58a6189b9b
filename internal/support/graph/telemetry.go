package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/router"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
	logx "github.com/gridassist/server/pkg/logger"
)

// runTelemetry analyses a raw device payload. High and Critical severities
// auto-create an incident through the telemetry worker's submit tool.
func (e *Engine) runTelemetry(ctx context.Context, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	e.events.Publish(st.ConversationID, services.EventAgentActive, map[string]any{
		"agent":   workers.NameTelemetry,
		"status":  "processing",
		"message": "Telemetry: Analyzing device payload...",
	})

	payload, ok := model.LastByRole(st.Messages, model.RoleHuman)
	if !ok {
		return model.Patch{}, fmt.Errorf("no telemetry payload in transcript")
	}

	out, _, err := workers.RunInto[model.TelemetryOutput](ctx, e.workers.Telemetry, payload.Content, deps)
	if err != nil {
		return model.Patch{}, fmt.Errorf("telemetry analysis: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Device diagnostic (%s severity): %s", orDefault(out.Priority, "unknown"), out.Reasoning)
	if out.TicketID != "" {
		fmt.Fprintf(&b, "\n\nIncident %s has been raised automatically.", out.TicketID)
	}

	patch := model.Patch{
		Messages:     []model.Message{model.AIMessage(b.String())},
		IoTAdvice:    out.Reasoning,
		IoTConsulted: true,
	}
	if out.TicketID != "" {
		patch.RecentTicketID = model.StringPtr(out.TicketID)
	}

	logx.Info().
		Str("conversation_id", st.ConversationID).
		Str("priority", out.Priority).
		Str("ticket_id", out.TicketID).
		Msg("telemetry payload analyzed")

	return patch, nil
}

// RunTelemetry feeds one device payload through the telemetry node, creating
// a synthetic conversation when the caller supplies no id. This is the entry
// point for the MQTT bridge and the ingest endpoint.
func (e *Engine) RunTelemetry(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
	if in.ConversationID == "" {
		in.ConversationID = "mqtt-" + uuid.NewString()
	}

	mu := e.lockFor(in.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	st, err := e.checkpoints.Load(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if st == nil {
		st = model.NewConversationState(in.ConversationID)
	}

	deps := e.buildDeps(ctx, in)
	st.Apply(model.Patch{Messages: []model.Message{model.HumanMessage(in.Message)}})

	e.walk(ctx, router.NodeIoT, st, deps)

	if err := e.checkpoints.Save(ctx, st); err != nil {
		logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to checkpoint conversation state")
	}

	res := e.result(st)
	res.AgentName = workers.NameTelemetry
	return res, nil
}
