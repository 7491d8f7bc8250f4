package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/config"
)

const anthropicVersion = "2023-06-01"

// Client judges relevance with an LLM behind the messages API. Every call is
// one request; the model is instructed to answer with bare JSON.
type Client struct {
	http     *resty.Client
	endpoint string
	model    string
	log      *zap.Logger
}

func NewClient(cfg config.RelevanceConfig, log *zap.Logger) *Client {
	http := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion)

	return &Client{
		http:     http,
		endpoint: cfg.BaseURL,
		model:    cfg.Model,
		log:      log.Named("relevance"),
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *Client) ask(ctx context.Context, system, user string) (string, error) {
	var out messagesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(messagesRequest{
			Model:     c.model,
			MaxTokens: 1024,
			System:    system,
			Messages:  []message{{Role: "user", Content: user}},
		}).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("relevance request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("relevance request: status %d", resp.StatusCode())
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" || block.Type == "" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (c *Client) Relevant(ctx context.Context, topic string, candidates []Candidate) ([]int64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, cand := range candidates {
		fmt.Fprintf(&sb, "%d: %s\n", cand.ID, cand.Title)
	}

	system := "You judge marketplace listings. Given a topic and a numbered list of listing titles, answer with a JSON array containing the ids of the listings that genuinely belong to the topic. Answer with JSON only, no prose."
	user := fmt.Sprintf("Topic: %s\n\nListings:\n%s", topic, sb.String())

	text, err := c.ask(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &ids); err != nil {
		return nil, fmt.Errorf("relevance verdict unparseable: %w", err)
	}

	known := make(map[int64]struct{}, len(candidates))
	for _, cand := range candidates {
		known[cand.ID] = struct{}{}
	}
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := known[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept, nil
}

func (c *Client) ScoreOffers(ctx context.Context, query string, titles []string) ([]float64, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for i, title := range titles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
	}

	system := "You rate how well supplier listings match a buyer's query. Answer with a JSON array of numbers between 0 and 1, one per listing, in the same order. Answer with JSON only, no prose."
	user := fmt.Sprintf("Query: %s\n\nListings:\n%s", query, sb.String())

	text, err := c.ask(ctx, system, user)
	if err != nil {
		return nil, err
	}

	var scores []float64
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &scores); err != nil {
		return nil, fmt.Errorf("relevance scores unparseable: %w", err)
	}
	if len(scores) != len(titles) {
		return nil, fmt.Errorf("relevance scores: got %d for %d listings", len(scores), len(titles))
	}
	for i, s := range scores {
		if s < 0 {
			scores[i] = 0
		}
		if s > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}

// extractJSONArray trims any chatter around the first JSON array in a reply.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
