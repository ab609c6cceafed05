// Package gemini calls the Gemini generateContent REST endpoint.
package gemini

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/park285/nickguard/internal/httpjson"
)

var ErrEmptyResponse = errors.New("gemini: response has no text")

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type Client struct {
	http   *httpjson.Client
	apiKey string
	model  string
}

// New builds a client for model. baseURL is normally
// https://generativelanguage.googleapis.com.
func New(baseURL, apiKey, model string, opts ...httpjson.Option) *Client {
	opts = append([]httpjson.Option{httpjson.WithTimeout(20 * time.Second), httpjson.WithRetry(2)}, opts...)
	return &Client{
		http:   httpjson.NewClient(baseURL, opts...),
		apiKey: apiKey,
		model:  strings.TrimPrefix(strings.TrimSpace(model), "models/"),
	}
}

// Model is the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends a single-turn prompt and returns the concatenated text of the
// first candidate.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: 0},
	}
	path := "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent?key=" + url.QueryEscape(c.apiKey)

	var resp generateResponse
	if err := c.http.PostJSON(ctx, path, req, &resp, true); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", errors.New("gemini: prompt blocked: " + resp.PromptFeedback.BlockReason)
		}
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
