// Package knowledge retrieves persona background snippets from the
// external knowledge service. Retrieval is optional: the chat pipeline
// works without it and treats failures as empty results.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/mireilabs/velora/backend/internal/config"
)

// Snippet is one retrieved passage of persona background.
type Snippet struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Retriever looks up persona background for a user query.
type Retriever interface {
	Retrieve(ctx context.Context, personaID, query string) ([]Snippet, error)
}

type httpRetriever struct {
	cfg    config.KnowledgeConfig
	client *http.Client
}

// NewRetriever returns nil when the service is not configured; callers
// treat a nil Retriever as "no knowledge base".
func NewRetriever(cfg config.KnowledgeConfig, client *http.Client) Retriever {
	if cfg.BaseURL == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpRetriever{cfg: cfg, client: client}
}

func (r *httpRetriever) Retrieve(ctx context.Context, personaID, query string) ([]Snippet, error) {
	body, err := json.Marshal(map[string]any{
		"persona_id": personaID,
		"query":      query,
		"top_k":      r.cfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("encode knowledge query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build knowledge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("knowledge search: status %d", resp.StatusCode)
	}

	var out struct {
		Results []Snippet `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode knowledge response: %w", err)
	}
	return out.Results, nil
}

// Lookup retrieves snippets, logging and swallowing errors; a failed
// retrieval never fails the turn.
func Lookup(ctx context.Context, r Retriever, personaID, query string) []Snippet {
	if r == nil {
		return nil
	}
	snippets, err := r.Retrieve(ctx, personaID, query)
	if err != nil {
		log.Printf("[knowledge] retrieval failed for persona %s: %v", personaID, err)
		return nil
	}
	return snippets
}
