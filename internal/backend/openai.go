package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"PhindChat/internal/provider"
	"PhindChat/internal/session"
)

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]interface{} `json:"usage"`
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint (OpenAI, Grok)
type OpenAI struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	onUsage    func(ctx context.Context, usage map[string]interface{})
}

// NewOpenAI creates an OpenAI-compatible backend registered under name
func NewOpenAI(name, baseURL, model, apiKey string, httpClient *http.Client) *OpenAI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenAI{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// OnUsage registers a callback receiving the usage block of each response
func (o *OpenAI) OnUsage(fn func(ctx context.Context, usage map[string]interface{})) {
	o.onUsage = fn
}

// Name returns the backend name
func (o *OpenAI) Name() string { return o.name }

// Generate sends the chat and delivers the answer in a single update
func (o *OpenAI) Generate(ctx context.Context, messages []session.Message, update func(text string)) error {
	if o.apiKey == "" {
		return fmt.Errorf("%w for %s", provider.ErrMissingAPIKey, o.name)
	}

	reqBody := OpenAIRequest{
		Model:    o.model,
		Messages: toRoleContent(messages),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if o.onUsage != nil && apiResp.Usage != nil {
		o.onUsage(ctx, apiResp.Usage)
	}

	if len(apiResp.Choices) == 0 {
		return fmt.Errorf("empty response from %s", o.name)
	}
	if update != nil {
		update(apiResp.Choices[0].Message.Content)
	}
	return nil
}
