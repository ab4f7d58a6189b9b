package workers

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"google.golang.org/genai"

	supmodel "github.com/gridassist/server/internal/support/model"
	logx "github.com/gridassist/server/pkg/logger"
)

// Worker variant names; they double as the agent name surfaced to clients.
const (
	NameTriage     = "triage"
	NameKnowledge  = "knowledge"
	NameTicketing  = "ticketing"
	NameDiagnostic = "diagnostic"
	NameTelemetry  = "telemetry"
	NamePublic     = "public_knowledge"
)

// Set bundles the worker variants the support graph invokes.
type Set struct {
	Triage     *Worker
	Knowledge  *Worker
	Ticketing  *Worker
	Diagnostic *Worker
	Telemetry  *Worker
	Public     *Worker
}

// NewGeminiClient builds the shared Gemini API client the workers and the
// embedding search run on.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("error creating Gemini client")
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

// SetConfig wires the shared Gemini client and the toolbox into a Set.
type SetConfig struct {
	Client  *genai.Client
	Models  supmodel.WorkersConfig
	Toolbox *Toolbox
}

// NewSet builds the five specialised workers plus the public variant on one
// shared client.
func NewSet(ctx context.Context, cfg SetConfig) (*Set, error) {
	client := cfg.Client
	if client == nil {
		return nil, fmt.Errorf("gemini client is nil")
	}

	tb := cfg.Toolbox
	searchTools := []tool.InvokableTool{tb.SearchKBTool(), tb.WebSearchTool()}
	ticketTools := []tool.InvokableTool{tb.SubmitTicketTool(), tb.GetMyTicketsTool()}

	build := func(name string, mc supmodel.WorkerModelConfig, system string, tools []tool.InvokableTool) (*Worker, error) {
		return New(ctx, Config{
			Name:         name,
			Client:       client,
			Model:        mc,
			SystemPrompt: system,
			Tools:        tools,
		})
	}

	triage, err := build(NameTriage, cfg.Models.Triage, triageSystemPrompt, nil)
	if err != nil {
		return nil, err
	}
	knowledge, err := build(NameKnowledge, cfg.Models.Knowledge, knowledgeSystemPrompt, searchTools)
	if err != nil {
		return nil, err
	}
	ticketing, err := build(NameTicketing, cfg.Models.Ticketing, ticketingSystemPrompt, ticketTools)
	if err != nil {
		return nil, err
	}
	diagnostic, err := build(NameDiagnostic, cfg.Models.Diagnostic, diagnosticSystemPrompt, searchTools)
	if err != nil {
		return nil, err
	}
	telemetry, err := build(NameTelemetry, cfg.Models.Telemetry, telemetrySystemPrompt, []tool.InvokableTool{tb.SubmitTicketTool()})
	if err != nil {
		return nil, err
	}
	public, err := build(NamePublic, cfg.Models.Knowledge, publicKnowledgeSystemPrompt, searchTools)
	if err != nil {
		return nil, err
	}

	return &Set{
		Triage:     triage,
		Knowledge:  knowledge,
		Ticketing:  ticketing,
		Diagnostic: diagnostic,
		Telemetry:  telemetry,
		Public:     public,
	}, nil
}
