// Package openai implements a minimal OpenAI-compatible chat-completions
// client with tool calling.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/llm"
)

const defaultBaseURL = "https://api.openai.com"
const maxErrorBodyBytes = 2048

// Client talks to an OpenAI-compatible /v1/chat/completions endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the given base URL. An empty baseURL uses
// the public OpenAI endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ValidateKey checks the API key against the models endpoint.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	if strings.TrimSpace(apiKey) == "" {
		return llm.ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("validation failed: %s", resp.Status)
	}
	return nil
}

// ChatWithTools sends a chat completion request with the tool catalog and
// returns the first choice, including any tool calls.
func (c *Client) ChatWithTools(ctx context.Context, apiKey, model string, messages []llm.ChatMessage, tools []llm.Tool) (llm.ChatResponse, error) {
	payload := chatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if len(tools) > 0 {
		payload.Tools = tools
		payload.ToolChoice = "auto"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return llm.ChatResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return llm.ChatResponse{}, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return llm.ChatResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return llm.ChatResponse{}, fmt.Errorf("openai error: %s - %s", resp.Status, string(errorBody))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return llm.ChatResponse{}, err
	}
	if len(completion.Choices) == 0 {
		return llm.ChatResponse{}, errors.New("openai empty response")
	}
	choice := completion.Choices[0]
	out := llm.ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
	}
	if out.FinishReason == "" && len(out.ToolCalls) > 0 {
		out.FinishReason = "tool_calls"
	}
	return out, nil
}

// classifyStatus maps provider HTTP statuses onto the llm error taxonomy.
// 2xx and unrecognized statuses return nil so callers can handle the body.
func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return llm.ErrUnauthorized
	case status == http.StatusForbidden:
		return llm.ErrForbidden
	case status == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case status >= 500:
		return llm.ErrUnavailable
	}
	return nil
}

type chatCompletionRequest struct {
	Model      string            `json:"model"`
	Messages   []llm.ChatMessage `json:"messages"`
	Tools      []llm.Tool        `json:"tools,omitempty"`
	ToolChoice string            `json:"tool_choice,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Role      string         `json:"role"`
			Content   string         `json:"content"`
			ToolCalls []llm.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
