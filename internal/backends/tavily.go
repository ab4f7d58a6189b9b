package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gridassist/server/internal/core/errx"
	"github.com/gridassist/server/internal/support/services"
)

// TavilyConfig is sourced from the environment.
type TavilyConfig struct {
	APIKey      string `envconfig:"TAVILY_API_KEY"`
	SearchDepth string `envconfig:"TAVILY_SEARCH_DEPTH" default:"advanced"`
	MaxResults  int    `envconfig:"TAVILY_MAX_RESULTS" default:"5"`
}

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient performs live web searches for outage and weather context. It
// implements services.WebSearcher.
type TavilyClient struct {
	cfg  TavilyConfig
	http *http.Client
}

func NewTavilyClient(cfg TavilyConfig) (*TavilyClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily api key is empty")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &TavilyClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *TavilyClient) Search(ctx context.Context, query string) ([]services.WebResult, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:      t.cfg.APIKey,
		Query:       query,
		SearchDepth: t.cfg.SearchDepth,
		MaxResults:  t.cfg.MaxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, errx.WrapExternalService("tavily", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errx.WrapExternalService("tavily", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errx.WrapExternalService("tavily", fmt.Errorf("status %d: %.200s", resp.StatusCode, raw))
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errx.WrapExternalService("tavily", fmt.Errorf("unexpected response: %w", err))
	}

	out := make([]services.WebResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, services.WebResult{URL: r.URL, Summary: r.Content})
	}
	return out, nil
}

var _ services.WebSearcher = (*TavilyClient)(nil)
