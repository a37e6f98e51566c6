package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/ansuz/internal/llm"
)

func TestChatWithTools_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth header = %q", got)
		}
		var payload struct {
			Model      string     `json:"model"`
			Tools      []llm.Tool `json:"tools"`
			ToolChoice string     `json:"tool_choice"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatal(err)
		}
		if payload.Model != "gpt-4o-mini" || len(payload.Tools) != 1 || payload.ToolChoice != "auto" {
			t.Errorf("payload = %+v", payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "list_pages", "arguments": "{}"}
					}]
				},
				"finish_reason": "tool_calls"
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	tools := []llm.Tool{{Type: "function", Function: llm.FunctionDef{Name: "list_pages"}}}
	resp, err := c.ChatWithTools(context.Background(), "sk-test", "gpt-4o-mini",
		[]llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}, tools)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Function.Name != "list_pages" {
		t.Errorf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q", resp.FinishReason)
	}
}

func TestChatWithTools_InfersToolCallFinish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"1","type":"function","function":{"name":"respond","arguments":"{}"}}]}}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).ChatWithTools(context.Background(), "k", "m", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.FinishReason != "tool_calls" {
		t.Errorf("finish reason = %q, want inferred tool_calls", resp.FinishReason)
	}
}

func TestChatWithTools_StatusTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llm.ErrUnauthorized},
		{http.StatusForbidden, llm.ErrForbidden},
		{http.StatusTooManyRequests, llm.ErrRateLimited},
		{http.StatusInternalServerError, llm.ErrUnavailable},
		{http.StatusBadGateway, llm.ErrUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := NewClient(srv.URL).ChatWithTools(context.Background(), "k", "m", nil, nil)
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestChatWithTools_UnmappedStatusKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unknown model"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ChatWithTools(context.Background(), "k", "m", nil, nil)
	if err == nil || errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestChatWithTools_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).ChatWithTools(context.Background(), "k", "m", nil, nil); err == nil {
		t.Error("empty choices accepted")
	}
}

func TestValidateKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") == "Bearer good" {
			w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.ValidateKey(context.Background(), "good"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if err := c.ValidateKey(context.Background(), "bad"); !errors.Is(err, llm.ErrUnauthorized) {
		t.Errorf("bad key: err = %v", err)
	}
	if err := c.ValidateKey(context.Background(), "  "); !errors.Is(err, llm.ErrUnauthorized) {
		t.Errorf("blank key: err = %v", err)
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://example.test/")
	if c.baseURL != "http://example.test" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if NewClient("").baseURL != defaultBaseURL {
		t.Error("empty base URL did not fall back to the default")
	}
}
