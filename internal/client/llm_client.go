package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pageforge/api/internal/config"
	"github.com/pageforge/api/internal/model"
)

// LLMClient talks to an OpenAI-compatible chat-completions API and serves as
// the external stage service. When no API key is configured it answers every
// stage with a deterministic mock payload so the whole pipeline runs offline.
type LLMClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
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
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewLLMClient creates a new chat-completions client
func NewLLMClient(cfg *config.LLMConfig) *LLMClient {
	return &LLMClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Call implements the stage service contract: one prompt in, raw text out.
func (c *LLMClient) Call(ctx context.Context, kind model.StageKind, system, user string) (string, error) {
	if !c.IsConfigured() {
		return mockStageResponse(kind), nil
	}
	return c.ChatCompletion(ctx, system, user)
}

// ChatCompletion sends a chat completion request
func (c *LLMClient) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	messages := []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}

	reqBody := ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.4,
		MaxTokens:   4096,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *LLMClient) IsConfigured() bool {
	return c.apiKey != ""
}

// mockStageResponse returns a canned but schema-valid payload per stage for
// development and testing without an API key.
func mockStageResponse(kind model.StageKind) string {
	switch kind {
	case model.StageNormalize:
		return `{"title": "Sample Submission", "summary": "A short overview of the submitted material.",
"body": "This is the cleaned body of the submission, organized into readable paragraphs.",
"keywords": ["sample", "submission"]}`
	case model.StageSpecify:
		return `{"title": "Sample Page", "audience": "general", "tone": "informative",
"sections": [{"heading": "Overview", "intent": "introduce the topic", "points": ["what it is"]},
{"heading": "Details", "intent": "explain the material", "points": ["key facts"]},
{"heading": "Summary", "intent": "wrap up", "points": ["takeaways"]}]}`
	case model.StageRender, model.StageRevise:
		return "<!doctype html>\n<html><head><title>Sample Page</title></head>" +
			"<body><h1>Overview</h1><p>Generated content.</p>" +
			"<h1>Details</h1><p>Generated content.</p>" +
			"<h1>Summary</h1><p>Generated content.</p></body></html>"
	case model.StageValidate:
		return `{"overall": 92,
"criteria": [{"name": "structure", "score": 95}, {"name": "fidelity", "score": 90},
{"name": "clarity", "score": 92}, {"name": "completeness", "score": 91}],
"issues": []}`
	default:
		return ""
	}
}
