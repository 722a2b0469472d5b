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

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicContent represents a content block of a response
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Role         string                 `json:"role"`
	Content      []AnthropicContent     `json:"content"`
	Model        string                 `json:"model"`
	StopReason   string                 `json:"stop_reason"`
	StopSequence string                 `json:"stop_sequence"`
	Usage        map[string]interface{} `json:"usage"`
}

const anthropicVersion = "2023-06-01"

// Anthropic calls the Anthropic messages API
type Anthropic struct {
	baseURL    string
	model      string
	maxTokens  int
	apiKey     string
	httpClient *http.Client
	onUsage    func(ctx context.Context, usage map[string]interface{})
}

// NewAnthropic creates an Anthropic backend
func NewAnthropic(baseURL, model, apiKey string, httpClient *http.Client) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Anthropic{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxTokens:  1024,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// OnUsage registers a callback receiving the usage block of each response
func (a *Anthropic) OnUsage(fn func(ctx context.Context, usage map[string]interface{})) {
	a.onUsage = fn
}

// Name returns the backend name
func (a *Anthropic) Name() string { return "anthropic" }

// Generate sends the chat and delivers the first text block in a single update.
// System messages are lifted into the top-level system prompt.
func (a *Anthropic) Generate(ctx context.Context, messages []session.Message, update func(text string)) error {
	if a.apiKey == "" {
		return fmt.Errorf("%w for anthropic", provider.ErrMissingAPIKey)
	}

	reqBody := AnthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
	}
	var system []string
	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, AnthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	reqBody.System = strings.Join(system, "\n\n")

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
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

	var apiResp AnthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if a.onUsage != nil && apiResp.Usage != nil {
		a.onUsage(ctx, apiResp.Usage)
	}

	for _, content := range apiResp.Content {
		if content.Type == "text" {
			if update != nil {
				update(content.Text)
			}
			return nil
		}
	}

	return fmt.Errorf("empty response from Anthropic")
}
