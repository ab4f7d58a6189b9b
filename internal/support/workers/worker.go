package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"github.com/gridassist/server/internal/core/errx"
	supmodel "github.com/gridassist/server/internal/support/model"
	logx "github.com/gridassist/server/pkg/logger"
)

type depsCtxKey struct{}

// WithDeps attaches the per-turn identity bundle to the context so worker
// tools can read it, mirroring how the instruction itself carries it to the
// model.
func WithDeps(ctx context.Context, deps supmodel.WorkerDeps) context.Context {
	return context.WithValue(ctx, depsCtxKey{}, deps)
}

// DepsFromContext returns the identity bundle for the current run. The zero
// value is returned when none was attached (tests, detached tool calls).
func DepsFromContext(ctx context.Context) supmodel.WorkerDeps {
	if d, ok := ctx.Value(depsCtxKey{}).(supmodel.WorkerDeps); ok {
		return d
	}
	return supmodel.WorkerDeps{}
}

// Worker is a single-purpose LLM-backed capability: a chat model, a system
// prompt, an optional tool set and a retry budget. The same type backs all
// five variants; they differ only in configuration.
type Worker struct {
	Name string

	cm      model.BaseChatModel
	cfg     supmodel.WorkerModelConfig
	system  string
	tools   []tool.InvokableTool
	toolMap map[string]tool.InvokableTool
}

// Config holds what a single worker needs beyond its model settings.
type Config struct {
	Name         string
	Client       *genai.Client
	Model        supmodel.WorkerModelConfig
	SystemPrompt string
	Tools        []tool.InvokableTool
}

// New constructs a worker with its own Gemini chat model. Tools, when
// present, are bound to the model once at construction.
func New(ctx context.Context, cfg Config) (*Worker, error) {
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      cfg.Client,
		Model:       cfg.Model.Model,
		Temperature: &cfg.Model.Temperature,
		MaxTokens:   &cfg.Model.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("worker", cfg.Name).Msg("error creating chat model")
		return nil, fmt.Errorf("create %s chat model: %w", cfg.Name, err)
	}

	w := &Worker{
		Name:    cfg.Name,
		cm:      cm,
		cfg:     cfg.Model,
		system:  cfg.SystemPrompt,
		tools:   cfg.Tools,
		toolMap: map[string]tool.InvokableTool{},
	}

	if len(cfg.Tools) > 0 {
		infos := make([]*schema.ToolInfo, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			info, err := t.Info(ctx)
			if err != nil {
				return nil, fmt.Errorf("tool info for %s: %w", cfg.Name, err)
			}
			infos = append(infos, info)
			w.toolMap[info.Name] = t
		}
		if err := cm.BindTools(infos); err != nil {
			logx.Error().Err(err).Str("worker", cfg.Name).Msg("failed to bind tools")
			return nil, fmt.Errorf("bind tools for %s: %w", cfg.Name, err)
		}
	}

	return w, nil
}

// NewWithModel builds a worker around an existing chat model. Tests inject
// fakes through this path.
func NewWithModel(name string, cm model.BaseChatModel, cfg supmodel.WorkerModelConfig, systemPrompt string, tools []tool.InvokableTool) *Worker {
	w := &Worker{
		Name:    name,
		cm:      cm,
		cfg:     cfg,
		system:  systemPrompt,
		tools:   tools,
		toolMap: map[string]tool.InvokableTool{},
	}
	for _, t := range tools {
		if info, err := t.Info(context.Background()); err == nil {
			w.toolMap[info.Name] = t
		}
	}
	return w
}

// Result is one completed worker run: the final free-text content plus the
// full message trail (assistant turns and tool results) for callers that
// need to scan it.
type Result struct {
	Content string
	Trail   []*schema.Message
}

func (w *Worker) systemMessage(deps supmodel.WorkerDeps) *schema.Message {
	var b strings.Builder
	b.WriteString(w.system)
	b.WriteString("\n\n<session>\n")
	if deps.UserName != "" {
		fmt.Fprintf(&b, "user_name: %s\n", deps.UserName)
	}
	if deps.UserEmail != "" {
		fmt.Fprintf(&b, "user_email: %s\n", deps.UserEmail)
	}
	if deps.UserPhone != "" {
		fmt.Fprintf(&b, "user_phone: %s\n", deps.UserPhone)
	}
	if deps.UserAddress != "" {
		fmt.Fprintf(&b, "user_address: %s\n", deps.UserAddress)
	}
	if deps.CurrentDate != "" {
		fmt.Fprintf(&b, "current_timestamp: %s\n", deps.CurrentDate)
	}
	b.WriteString("</session>")
	return schema.SystemMessage(b.String())
}

// Run executes one instruction against the model, resolving tool calls in a
// bounded loop. The context carries deps for the tools; malformed tool
// invocations degrade to error payloads in the trail rather than failing the
// run.
func (w *Worker) Run(ctx context.Context, instruction string, deps supmodel.WorkerDeps) (*Result, error) {
	ctx = WithDeps(ctx, deps)

	messages := []*schema.Message{
		w.systemMessage(deps),
		schema.UserMessage(instruction),
	}
	trail := make([]*schema.Message, 0, 4)

	maxCalls := w.cfg.MaxToolCalls
	if maxCalls <= 0 {
		maxCalls = 5
	}

	for step := 0; ; step++ {
		out, err := w.generate(ctx, messages)
		if err != nil {
			return nil, err
		}
		messages = append(messages, out)
		trail = append(trail, out)

		if len(out.ToolCalls) == 0 {
			return &Result{Content: out.Content, Trail: trail}, nil
		}
		if step >= maxCalls {
			logx.Warn().
				Str("worker", w.Name).
				Int("max_tool_calls", maxCalls).
				Msg("tool call limit reached, returning last content")
			return &Result{Content: out.Content, Trail: trail}, nil
		}

		for _, call := range out.ToolCalls {
			result := w.invokeTool(ctx, call)
			toolMsg := schema.ToolMessage(result, call.ID, schema.WithToolName(call.Function.Name))
			messages = append(messages, toolMsg)
			trail = append(trail, toolMsg)
		}
	}
}

// generate calls the model with the worker's retry budget; model-level
// failures (transport, malformed completions) are retried, everything else
// surfaces.
func (w *Worker) generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	var lastErr error
	attempts := w.cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := w.cm.Generate(ctx, messages)
		if err == nil && out != nil {
			return out, nil
		}
		if err == nil {
			err = errors.New("model returned nil message")
		}
		lastErr = err
		logx.Warn().
			Err(err).
			Str("worker", w.Name).
			Int("attempt", attempt+1).
			Msg("model call failed")
	}
	return nil, fmt.Errorf("%s worker: %w", w.Name, lastErr)
}

// invokeTool runs one tool call, converting failures into a compact error
// payload the model can react to. The error text stays in the trail, which
// is what the ticket node scans for hints.
func (w *Worker) invokeTool(ctx context.Context, call schema.ToolCall) string {
	name := call.Function.Name
	t, ok := w.toolMap[name]
	if !ok {
		logx.Warn().
			Str("worker", w.Name).
			Str("tool_name", name).
			Msg("unknown or invalid tool call, returning fallback result")
		return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name)
	}

	result, err := t.InvokableRun(ctx, call.Function.Arguments)
	if err != nil {
		logx.Error().Err(err).Str("worker", w.Name).Str("tool_name", name).Msg("tool execution failed")
		return fmt.Sprintf("{\"error\":%q,\"tool\":%q}", err.Error(), name)
	}
	return result
}

// RunText runs the instruction and returns the final free-text reply.
func (w *Worker) RunText(ctx context.Context, instruction string, deps supmodel.WorkerDeps) (string, error) {
	res, err := w.Run(ctx, instruction, deps)
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// RunInto runs the worker and decodes its final reply into out. Off-schema
// replies are retried within the worker's budget; the last trail is returned
// even on failure so callers can mine it for partial results.
func RunInto[T any](ctx context.Context, w *Worker, instruction string, deps supmodel.WorkerDeps) (*T, *Result, error) {
	var lastRes *Result
	var lastErr error

	attempts := w.cfg.Retries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		res, err := w.Run(ctx, instruction, deps)
		if err != nil {
			return nil, lastRes, err
		}
		lastRes = res

		var out T
		if err := DecodeInto(res.Content, &out); err != nil {
			lastErr = err
			logx.Warn().
				Err(err).
				Str("worker", w.Name).
				Int("attempt", attempt+1).
				Msg("worker output off schema, retrying")
			continue
		}
		return &out, res, nil
	}
	if lastErr == nil {
		lastErr = errx.WrapWorkerOutput(errors.New("no attempts made"))
	}
	return nil, lastRes, lastErr
}
