package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/gridassist/server/internal/core/errx"
	"github.com/gridassist/server/internal/support/services"
)

// QdrantConfig is sourced from the environment.
type QdrantConfig struct {
	URL            string `envconfig:"QDRANT_URL" default:"http://localhost:6333"`
	APIKey         string `envconfig:"QDRANT_API_KEY"`
	Collection     string `envconfig:"QDRANT_COLLECTION" default:"knowledge_base"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	TopK           int    `envconfig:"QDRANT_TOP_K" default:"5"`
}

// QdrantSearcher answers knowledge queries by embedding them with Gemini and
// searching the Qdrant collection over its REST API. It implements
// services.KnowledgeSearcher.
type QdrantSearcher struct {
	cfg    QdrantConfig
	genai  *genai.Client
	http   *http.Client
}

func NewQdrantSearcher(cfg QdrantConfig, client *genai.Client) (*QdrantSearcher, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &QdrantSearcher{
		cfg:   cfg,
		genai: client,
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (q *QdrantSearcher) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := q.genai.Models.EmbedContent(ctx, q.cfg.EmbeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, errx.WrapExternalService("gemini-embeddings", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errx.WrapExternalService("gemini-embeddings", fmt.Errorf("empty embedding for query"))
	}
	return resp.Embeddings[0].Values, nil
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (q *QdrantSearcher) Search(ctx context.Context, query string) ([]services.Snippet, error) {
	vector, err := q.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(qdrantSearchRequest{
		Vector:      vector,
		Limit:       q.cfg.TopK,
		WithPayload: true,
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/collections/%s/points/search", q.cfg.URL, q.cfg.Collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.http.Do(req)
	if err != nil {
		return nil, errx.WrapExternalService("qdrant", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errx.WrapExternalService("qdrant", err)
	}
	if resp.StatusCode >= 400 {
		return nil, errx.WrapExternalService("qdrant", fmt.Errorf("status %d: %.200s", resp.StatusCode, raw))
	}

	var parsed qdrantSearchResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, errx.WrapExternalService("qdrant", fmt.Errorf("unexpected response: %w", err))
	}

	snippets := make([]services.Snippet, 0, len(parsed.Result))
	for _, hit := range parsed.Result {
		content, _ := hit.Payload["page_content"].(string)
		if content == "" {
			content, _ = hit.Payload["content"].(string)
		}
		if content == "" {
			continue
		}
		title, _ := hit.Payload["title"].(string)
		snippets = append(snippets, services.Snippet{
			Title:   title,
			Content: content,
			Score:   hit.Score,
		})
	}
	return snippets, nil
}

var _ services.KnowledgeSearcher = (*QdrantSearcher)(nil)
