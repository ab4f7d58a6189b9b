// Package graph drives the support conversation state machine: an explicit
// finite-state walk from triage through the downstream workers, one patch per
// node, checkpointed per turn.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridassist/server/internal/support/model"
	"github.com/gridassist/server/internal/support/router"
	"github.com/gridassist/server/internal/support/services"
	"github.com/gridassist/server/internal/support/workers"
	logx "github.com/gridassist/server/pkg/logger"
)

const timestampLayout = "2006-01-02 15:04:05"

// fallbackErrorMessage closes a turn whose node failed; state gathered so far
// is still checkpointed so the user can retry without re-entering details.
const fallbackErrorMessage = "I'm sorry, something went wrong on my side while handling that. Your details are saved - please try again."

// Engine executes the support graph. It guarantees at most one active
// execution per conversation id: a second inbound message for the same id
// queues behind the first, never interleaves.
type Engine struct {
	workers     *workers.Set
	tickets     services.TicketStore
	users       services.UserStore
	events      services.EventSink
	checkpoints services.CheckpointStore
	conv        model.ConversationConfig

	locks sync.Map // conversation id -> *sync.Mutex
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Workers      *workers.Set
	Tickets      services.TicketStore
	Users        services.UserStore
	Events       services.EventSink
	Checkpoints  services.CheckpointStore
	Conversation model.ConversationConfig
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Workers == nil {
		return nil, fmt.Errorf("workers are nil")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if cfg.Events == nil {
		cfg.Events = services.NewBus()
	}
	return &Engine{
		workers:     cfg.Workers,
		tickets:     cfg.Tickets,
		users:       cfg.Users,
		events:      cfg.Events,
		checkpoints: cfg.Checkpoints,
		conv:        cfg.Conversation,
	}, nil
}

func (e *Engine) lockFor(conversationID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(conversationID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// buildDeps resolves the stored user profile into the per-turn identity
// bundle. Profile lookup failures degrade to an anonymous turn.
func (e *Engine) buildDeps(ctx context.Context, in model.TurnInput) model.WorkerDeps {
	deps := model.WorkerDeps{
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
		WorkflowID:     in.WorkflowID,
		CurrentDate:    time.Now().Format(timestampLayout),
	}
	if in.UserID == "" || e.users == nil {
		return deps
	}
	profile, err := e.users.Get(ctx, in.UserID)
	if err != nil {
		logx.Warn().Err(err).Str("user_id", in.UserID).Msg("user profile lookup failed, continuing anonymous")
		return deps
	}
	if profile != nil {
		deps.UserName = profile.Name
		deps.UserEmail = profile.Email
		deps.UserPhone = profile.MobilePhone
		deps.UserAddress = profile.Address
		if deps.WorkflowID == "" {
			deps.WorkflowID = profile.WorkflowID
		}
	}
	return deps
}

// Run processes one inbound message: load checkpoint, walk the graph to a
// terminal decision, checkpoint, return the reply. Node failures end the
// turn with a user-facing error but still checkpoint partial state.
func (e *Engine) Run(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
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

	e.walk(ctx, router.NodeCustomerSupport, st, deps)

	if err := e.checkpoints.Save(ctx, st); err != nil {
		logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to checkpoint conversation state")
	}

	return e.result(st), nil
}

// RunPublic processes one message through the public-facing graph: a single
// informational node, no ticketing or diagnostics.
func (e *Engine) RunPublic(ctx context.Context, in model.TurnInput) (*model.TurnResult, error) {
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

	e.walk(ctx, router.NodePublic, st, deps)

	if err := e.checkpoints.Save(ctx, st); err != nil {
		logx.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("failed to checkpoint conversation state")
	}

	res := e.result(st)
	res.AgentName = workers.NamePublic
	return res, nil
}

// walk drives the state machine from start until a terminal decision.
func (e *Engine) walk(ctx context.Context, start string, st *model.ConversationState, deps model.WorkerDeps) {
	node := start
	for node != router.Terminal {
		logx.Debug().
			Str("conversation_id", st.ConversationID).
			Str("node", node).
			Str("intent", st.Intent.String()).
			Msg("entering node")

		patch, err := e.runNode(ctx, node, st, deps)
		if err != nil {
			logx.Error().Err(err).
				Str("conversation_id", st.ConversationID).
				Str("node", node).
				Msg("node execution failed, terminating turn")
			st.Apply(model.Patch{Messages: []model.Message{model.AIMessage(fallbackErrorMessage)}})
			return
		}
		st.Apply(patch)
		node = e.nextNode(node, st)
	}
}

// nextNode evaluates the conditional edge leaving the node just executed.
func (e *Engine) nextNode(node string, st *model.ConversationState) string {
	switch node {
	case router.NodeCustomerSupport:
		return router.RouteAfterTriage(st)
	case router.NodeTicket:
		return router.RouteAfterTicket(st)
	default:
		// knowledge, analyze, iot and public all end the turn.
		return router.Terminal
	}
}

func (e *Engine) runNode(ctx context.Context, node string, st *model.ConversationState, deps model.WorkerDeps) (model.Patch, error) {
	switch node {
	case router.NodeCustomerSupport:
		return e.runTriage(ctx, st, deps)
	case router.NodeKnowledge:
		return e.runKnowledge(ctx, st, deps)
	case router.NodeTicket:
		return e.runTicket(ctx, st, deps)
	case router.NodeAnalyze:
		return e.runDiagnostic(ctx, st, deps)
	case router.NodeIoT:
		return e.runTelemetry(ctx, st, deps)
	case router.NodePublic:
		return e.runPublic(ctx, st, deps)
	default:
		return model.Patch{}, fmt.Errorf("unknown node %q", node)
	}
}

// result extracts the reply and the responsible agent name from the final
// state.
func (e *Engine) result(st *model.ConversationState) *model.TurnResult {
	response := ""
	if last, ok := model.LastByRole(st.Messages, model.RoleAI); ok {
		response = last.Content
	}
	agent := "support_agent"
	if st.RecentTicketID != "" {
		agent = "ticket_agent"
	}
	return &model.TurnResult{Response: response, AgentName: agent, State: st}
}
