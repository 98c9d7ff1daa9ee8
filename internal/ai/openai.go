package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const classificationPrompt = `You are a support ticket classifier for a trucking/logistics fleet company.
Drivers send messages when they have issues with their trucks, ELD devices,
documentation, or need dispatch help.

Analyze the following message and determine:
1. is_ticket: Is this a support request that needs a ticket? (true/false)
2. confidence: How confident are you? (1-5, where 5 is certain)
3. category: One of: mechanical, electrical, tire, fuel, accident, eld, documentation, other
4. urgency: How urgent? (1-5, where 5 is emergency)

Respond with ONLY a JSON object, no other text:
{"is_ticket": bool, "confidence": int, "category": str, "urgency": int}`

const enrichmentPrompt = `You are a support ticket enrichment system for a trucking fleet.
Given the messages below from a truck driver, extract:
1. urgency: 1-5 (1=low, 5=emergency)
2. category: mechanical, electrical, tire, fuel, accident, eld, documentation, other
3. location: any location mentioned (city, highway, mile marker, etc.) or empty string
4. summary: one-sentence summary of the issue

Respond with ONLY a JSON object:
{"urgency": int, "category": str, "location": str, "summary": str}`

// OpenAICompatAdapter talks to any /chat/completions-compatible endpoint.
type OpenAICompatAdapter struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

func (a OpenAICompatAdapter) ClassifyText(ctx context.Context, text string) (Verdict, error) {
	content, err := a.complete(ctx, classificationPrompt, text, 100)
	if err != nil {
		return Verdict{}, err
	}
	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return v, nil
}

func (a OpenAICompatAdapter) EnrichText(ctx context.Context, combined string) (Enrichment, error) {
	content, err := a.complete(ctx, enrichmentPrompt, combined, 150)
	if err != nil {
		return Enrichment{}, err
	}
	var e Enrichment
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return Enrichment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return e, nil
}

func (a OpenAICompatAdapter) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if strings.TrimSpace(a.BaseURL) == "" {
		return "", fmt.Errorf("AI_URL is not set")
	}
	if strings.TrimSpace(a.Model) == "" {
		return "", fmt.Errorf("AI_MODEL is not set")
	}

	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
		Messages    []msg   `json:"messages"`
	}{
		Model:       a.Model,
		Temperature: 0.1,
		MaxTokens:   maxTokens,
		Messages: []msg{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	b, _ := json.Marshal(payload)
	url := strings.TrimRight(a.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(a.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("model request timed out")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("model request timed out")
		}
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return "", fmt.Errorf("model http error: %s: %v", resp.Status, errBody)
	}

	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrMalformedResponse)
	}
	return res.Choices[0].Message.Content, nil
}
