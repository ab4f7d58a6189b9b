package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
)

// fakeChatModel serves scripted responses in order.
type fakeChatModel struct {
	mu    sync.Mutex
	queue []*schema.Message
}

func (f *fakeChatModel) push(msgs ...*schema.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, msgs...)
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, errors.New("no scripted response left")
	}
	out := f.queue[0]
	f.queue = f.queue[1:]
	return out, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

var _ einomodel.BaseChatModel = (*fakeChatModel)(nil)

// memTicketStore records every backend interaction in memory.
type memTicketStore struct {
	mu      sync.Mutex
	seq     int
	created []services.CreateTicketInput
	notes   map[string][]string
	fields  map[string]map[string]string
}

func newMemTicketStore() *memTicketStore {
	return &memTicketStore{
		notes:  map[string][]string{},
		fields: map[string]map[string]string{},
	}
}

func (m *memTicketStore) Create(_ context.Context, in services.CreateTicketInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.created = append(m.created, in)
	return fmt.Sprintf("INC%07d", m.seq), nil
}

func (m *memTicketStore) Get(_ context.Context, number string) (*services.TicketRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, in := range m.created {
		if fmt.Sprintf("INC%07d", i+1) == number {
			return &services.TicketRecord{
				Number:           number,
				ShortDescription: in.Subject,
				Description:      in.Description,
				State:            "1",
				Priority:         in.Priority,
				Email:            in.Email,
			}, nil
		}
	}
	return nil, nil
}

func (m *memTicketStore) ListForUser(context.Context, string, services.TicketFilters) ([]services.TicketRecord, error) {
	return nil, nil
}

func (m *memTicketStore) AddNote(_ context.Context, number, text string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[number] = append(m.notes[number], text)
	return nil
}

func (m *memTicketStore) UpdateFields(_ context.Context, number string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fields[number] == nil {
		m.fields[number] = map[string]string{}
	}
	for k, v := range fields {
		m.fields[number][k] = v
	}
	return nil
}

func (m *memTicketStore) Resolve(context.Context, string, string) error { return nil }
func (m *memTicketStore) Delete(context.Context, string) error          { return nil }

var _ services.TicketStore = (*memTicketStore)(nil)

// memCheckpoints stores deep copies so the engine's in-flight state never
// aliases what a restart would reload.
type memCheckpoints struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCheckpoints() *memCheckpoints { return &memCheckpoints{m: map[string][]byte{}} }

func (c *memCheckpoints) Load(_ context.Context, conversationID string) (*model.ConversationState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.m[conversationID]
	if !ok {
		return nil, nil
	}
	var st model.ConversationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	if st.Details == nil {
		st.Details = map[string]string{}
	}
	return &st, nil
}

func (c *memCheckpoints) Save(_ context.Context, state *model.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[state.ConversationID] = raw
	return nil
}

var _ services.CheckpointStore = (*memCheckpoints)(nil)

type fakeKnowledge struct{ snippets []services.Snippet }

func (f fakeKnowledge) Search(context.Context, string) ([]services.Snippet, error) {
	return f.snippets, nil
}

type fakeWeb struct{}

func (fakeWeb) Search(context.Context, string) ([]services.WebResult, error) { return nil, nil }

type testHarness struct {
	engine      *Engine
	tickets     *memTicketStore
	checkpoints *memCheckpoints
	bus         *services.Bus

	triage     *fakeChatModel
	knowledge  *fakeChatModel
	ticketing  *fakeChatModel
	diagnostic *fakeChatModel
	telemetry  *fakeChatModel
	public     *fakeChatModel
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		tickets:     newMemTicketStore(),
		checkpoints: newMemCheckpoints(),
		bus:         services.NewBus(),
		triage:      &fakeChatModel{},
		knowledge:   &fakeChatModel{},
		ticketing:   &fakeChatModel{},
		diagnostic:  &fakeChatModel{},
		telemetry:   &fakeChatModel{},
		public:      &fakeChatModel{},
	}

	toolbox := &workers.Toolbox{
		Creator:   services.NewIdempotentTicketCreator(h.tickets),
		Tickets:   h.tickets,
		Knowledge: fakeKnowledge{},
		Web:       fakeWeb{},
		Events:    h.bus,
	}

	cfg := model.WorkerModelConfig{Model: "fake", MaxTokens: 512, MaxToolCalls: 5}
	ticketTools := []tool.InvokableTool{toolbox.SubmitTicketTool(), toolbox.GetMyTicketsTool()}
	submitOnly := []tool.InvokableTool{toolbox.SubmitTicketTool()}

	set := &workers.Set{
		Triage:     workers.NewWithModel(workers.NameTriage, h.triage, cfg, "triage", nil),
		Knowledge:  workers.NewWithModel(workers.NameKnowledge, h.knowledge, cfg, "knowledge", nil),
		Ticketing:  workers.NewWithModel(workers.NameTicketing, h.ticketing, cfg, "ticketing", ticketTools),
		Diagnostic: workers.NewWithModel(workers.NameDiagnostic, h.diagnostic, cfg, "diagnostic", nil),
		Telemetry:  workers.NewWithModel(workers.NameTelemetry, h.telemetry, cfg, "telemetry", submitOnly),
		Public:     workers.NewWithModel(workers.NamePublic, h.public, cfg, "public", nil),
	}

	engine, err := NewEngine(EngineConfig{
		Workers:      set,
		Tickets:      h.tickets,
		Events:       h.bus,
		Checkpoints:  h.checkpoints,
		Conversation: model.ConversationConfig{HistoryTurns: 10},
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func triageJSON(t *testing.T, out model.TriageOutput) *schema.Message {
	t.Helper()
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	return schema.AssistantMessage(string(raw), nil)
}

func toolCallMessage(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func TestEngine_FullEscalationCycle(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	conv := "conv-escalation"

	// Turn 1: everything supplied at once; the summary must be shown.
	h.triage.push(triageJSON(t, model.TriageOutput{
		Response:                   "I have all the details I need.",
		Intent:                     "escalate",
		AllDetailsGiven:            true,
		ExtractedLocation:          "12 Rue des Lilas, Lyon",
		ExtractedDescription:       "complete power outage",
		ExtractedOccurrence:        "since 8am today",
		ExtractedAvailability:      "weekday afternoons",
		ExtractedContactPreference: "phone",
		ExtractedEmail:             "jo@example.com",
		ExtractedPriority:          "High",
	}))

	res, err := h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: "My power has been out in Lyon since 8am. I'm free weekday afternoons, reach me by phone, jo@example.com, it's urgent."})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "Lyon")
	assert.Contains(t, res.Response, "Is everything correct?")

	st, err := h.checkpoints.Load(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.SummaryShown)
	assert.True(t, st.AllDetailsGiven)
	assert.Equal(t, model.IntentChat, st.Intent)
	assert.Empty(t, st.RecentTicketID)

	// Turn 2: summary affirmed; the knowledge consult runs and asks to proceed.
	h.triage.push(triageJSON(t, model.TriageOutput{Response: "Understood.", Intent: "chat"}))
	h.knowledge.push(schema.AssistantMessage("Check your breaker panel first. If neighbors are also without power it is a grid fault.", nil))

	res, err = h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: "yes, everything is correct"})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "breaker panel")
	assert.Contains(t, res.Response, "Shall I proceed with creating the ticket for you?")

	st, _ = h.checkpoints.Load(ctx, conv)
	assert.True(t, st.KnowledgeConsulted)
	assert.True(t, st.ConfirmationAsked)
	assert.Empty(t, h.tickets.created, "no ticket before the explicit go-ahead")

	// Turn 3: go-ahead. Ticket is created once, diagnostics run silently.
	h.triage.push(triageJSON(t, model.TriageOutput{Response: "Creating your ticket now.", Intent: "chat"}))
	h.ticketing.push(
		toolCallMessage("call-1", workers.ToolSubmitTicket, `{"subject":"complete power outage","description":"complete power outage since 8am today at 12 Rue des Lilas, Lyon","priority":"High","email":"jo@example.com"}`),
		schema.AssistantMessage(`{"incident_id":"INC0000001","servicenow_id":"INC0000001","status":"submitted","action_taken":"created"}`, nil),
	)
	h.diagnostic.push(schema.AssistantMessage("Probable grid-side fault affecting the Lyon sector. Dispatch recommended.", nil))

	res, err = h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: "yes go ahead"})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "INC0000001")
	assert.Contains(t, res.Response, "created successfully")
	assert.Equal(t, "ticket_agent", res.AgentName)

	require.Len(t, h.tickets.created, 1, "exactly one backend creation")
	st, _ = h.checkpoints.Load(ctx, conv)
	assert.Equal(t, "INC0000001", st.RecentTicketID)
	assert.False(t, st.SummaryShown, "cycle flags reset after creation")
	assert.False(t, st.AllDetailsGiven)
	assert.Equal(t, "complete power outage", st.Details[model.DetailDescription], "details survive the reset")

	require.NotEmpty(t, h.tickets.notes["INC0000001"])
	assert.Contains(t, h.tickets.notes["INC0000001"][0], "NEURAL DIAGNOSTIC REPORT")
	assert.Equal(t, "2", h.tickets.fields["INC0000001"]["state"])
	assert.NotEmpty(t, h.tickets.fields["INC0000001"]["u_ai_analysis"])

	// Turn 4: closing reply ends the conversation.
	h.triage.push(triageJSON(t, model.TriageOutput{Response: "Glad to help.", Intent: "chat"}))

	res, err = h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: "no that is all"})
	require.NoError(t, err)
	assert.Equal(t, "Glad to help.", res.Response)

	st, _ = h.checkpoints.Load(ctx, conv)
	assert.Equal(t, model.IntentEnd, st.Intent)
	assert.Len(t, h.tickets.created, 1, "closing turn must not touch the backend")
}

func TestEngine_TechnicalQuestionNoInfoFallback(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.triage.push(triageJSON(t, model.TriageOutput{Response: "Let me check.", Intent: "technical"}))
	h.knowledge.push(schema.AssistantMessage(workers.NoInfoFound, nil))

	res, err := h.engine.Run(ctx, model.TurnInput{ConversationID: "conv-tech", Message: "why does my inverter show error E12?"})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "couldn't find specific information")
	assert.Empty(t, h.tickets.created)
}

func TestEngine_TriageParseFailureDegradesToApology(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.triage.push(schema.AssistantMessage("sorry, I cannot produce JSON today", nil))

	res, err := h.engine.Run(ctx, model.TurnInput{ConversationID: "conv-garbled", Message: "hello"})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "rephrase")

	// The turn still checkpointed both transcript entries.
	st, err := h.checkpoints.Load(ctx, "conv-garbled")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Len(t, st.Messages, 2)
}

func TestEngine_TicketCreationFailurePreservesDetails(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	conv := "conv-fail"

	// Pre-seed a confirmed escalation so the turn routes straight to ticketing.
	st := model.NewConversationState(conv)
	st.Apply(model.Patch{
		Messages: []model.Message{model.HumanMessage("my power is out")},
		Details: map[string]string{
			model.DetailLocation:          "Lyon",
			model.DetailDescription:       "outage",
			model.DetailOccurrence:        "constant",
			model.DetailAvailability:      "mornings",
			model.DetailContactPreference: "phone",
			model.DetailEmail:             "jo@example.com",
		},
		AllDetailsGiven:    true,
		SummaryShown:       true,
		KnowledgeConsulted: true,
		ConfirmationAsked:  true,
	})
	require.NoError(t, h.checkpoints.Save(ctx, st))

	h.triage.push(triageJSON(t, model.TriageOutput{Response: "On it.", Intent: "chat"}))
	// The worker reports no usable incident id and the trail has none either.
	h.ticketing.push(schema.AssistantMessage(`{"incident_id":"UNKNOWN","status":"error"}`, nil))

	res, err := h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: "yes go ahead"})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "was not created")

	reloaded, _ := h.checkpoints.Load(ctx, conv)
	assert.Empty(t, reloaded.RecentTicketID)
	assert.Equal(t, "Lyon", reloaded.Details[model.DetailLocation], "details must survive for the retry")
}

func TestEngine_TicketIDRecoveredFromTrail(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	conv := "conv-trail"

	st := model.NewConversationState(conv)
	st.Apply(model.Patch{
		Messages: []model.Message{model.HumanMessage("outage")},
		Details: map[string]string{
			model.DetailLocation:          "Lyon",
			model.DetailDescription:       "outage",
			model.DetailOccurrence:        "constant",
			model.DetailAvailability:      "mornings",
			model.DetailContactPreference: "phone",
		},
		AllDetailsGiven:    true,
		SummaryShown:       true,
		KnowledgeConsulted: true,
		ConfirmationAsked:  true,
	})
	require.NoError(t, h.checkpoints.Save(ctx, st))

	h.triage.push(triageJSON(t, model.TriageOutput{Response: "On it.", Intent: "chat"}))
	// The final reply loses the id but the tool result in the trail has it.
	h.ticketing.push(
		toolCallMessage("call-1", workers.ToolSubmitTicket, `{"subject":"outage","description":"outage","priority":"Medium","email":"jo@example.com"}`),
		schema.AssistantMessage(`{"incident_id":"","status":"submitted"}`, nil),
	)
	h.diagnostic.push(schema.AssistantMessage("Report.", nil))

	res, err := h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: "go ahead"})
	require.NoError(t, err)
	assert.Contains(t, res.Response, "INC0000001")

	reloaded, _ := h.checkpoints.Load(ctx, conv)
	assert.Equal(t, "INC0000001", reloaded.RecentTicketID)
}

func TestEngine_Telemetry(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.telemetry.push(
		toolCallMessage("call-1", workers.ToolSubmitTicket, `{"subject":"Transformer overheat","description":"Temperature sensor exceeded safe limit","priority":"High","email":"ops@example.com","contact_type":"iot"}`),
		schema.AssistantMessage(`{"priority":"High","incident_subject":"Transformer overheat","technical_category":"hardware","reconstructed_description":"Temperature sensor exceeded safe limit","reasoning":"Sustained over-temperature on transformer T-17","ticket_id":"INC0000001","ticket_status":"submitted"}`, nil),
	)

	res, err := h.engine.RunTelemetry(ctx, model.TurnInput{Message: `{"device":"T-17","temp_c":131}`})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.State.ConversationID, "mqtt-"), "synthetic conversation id expected")
	assert.Contains(t, res.Response, "INC0000001")
	assert.Equal(t, "INC0000001", res.State.RecentTicketID)
	assert.True(t, res.State.IoTConsulted)
	require.Len(t, h.tickets.created, 1)
	assert.Equal(t, "iot", h.tickets.created[0].ContactType)
}

func TestEngine_PublicChat(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	h.public.push(schema.AssistantMessage("Planned maintenance runs Sunday 2-4am. Anything else?", nil))

	res, err := h.engine.RunPublic(ctx, model.TurnInput{ConversationID: "pub-1", Message: "when is the next planned maintenance?"})
	require.NoError(t, err)
	assert.Equal(t, workers.NamePublic, res.AgentName)
	assert.Contains(t, res.Response, "Planned maintenance")
	assert.Empty(t, h.tickets.created)
}

func TestEngine_QueuedTurnsDoNotInterleave(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	conv := "conv-serial"

	h.triage.push(
		triageJSON(t, model.TriageOutput{Response: "First reply.", Intent: "chat"}),
		triageJSON(t, model.TriageOutput{Response: "Second reply.", Intent: "chat"}),
	)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Run(ctx, model.TurnInput{ConversationID: conv, Message: fmt.Sprintf("message %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st, err := h.checkpoints.Load(ctx, conv)
	require.NoError(t, err)
	require.NotNil(t, st)
	// Two full turns: strict human/ai alternation, no interleaving.
	require.Len(t, st.Messages, 4)
	assert.Equal(t, model.RoleHuman, st.Messages[0].Role)
	assert.Equal(t, model.RoleAI, st.Messages[1].Role)
	assert.Equal(t, model.RoleHuman, st.Messages[2].Role)
	assert.Equal(t, model.RoleAI, st.Messages[3].Role)
}
