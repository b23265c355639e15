package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nyashahama/geoanalyzer/internal/ai"
)

var toolSpec = ai.ToolSpec{
	Name:        "natural_risks",
	Description: "hazards",
	Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
}

func TestOpenAI_MissingKeyMakesNoCall(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	_, err := ai.NewOpenAIClient("", "gpt-4o-mini", ai.WithBaseURL(srv.URL)).Complete(context.Background(), req)
	if !errors.Is(err, ai.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if hits != 0 {
		t.Errorf("expected no HTTP calls, got %d", hits)
	}
}

func TestOpenAI_SendsToolsAndParsesToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}

		var body map[string]any
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &body); err != nil {
			t.Fatalf("request is not JSON: %v", err)
		}
		if body["tool_choice"] != "auto" {
			t.Errorf("tool_choice = %v", body["tool_choice"])
		}
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", body["model"])
		}
		tools := body["tools"].([]any)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		if fn["name"] != "natural_risks" {
			t.Errorf("tool name = %v", fn["name"])
		}

		// The assistant tool-call turn must round-trip with null content and
		// string-encoded arguments.
		msgs := body["messages"].([]any)
		asst := msgs[1].(map[string]any)
		if asst["content"] != nil {
			t.Errorf("assistant content = %v, want null", asst["content"])
		}
		call := asst["tool_calls"].([]any)[0].(map[string]any)["function"].(map[string]any)
		if call["arguments"] != `{"lat":1,"lon":2}` {
			t.Errorf("arguments = %v", call["arguments"])
		}
		tool := msgs[2].(map[string]any)
		if tool["tool_call_id"] != "call_0" {
			t.Errorf("tool_call_id = %v", tool["tool_call_id"])
		}

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"natural_risks","arguments":"{\"lat\":40.4,\"lon\":-3.7}"}},
			{"id":"call_2","type":"function","function":{"name":"urban_layers","arguments":"not json"}}
		]},"finish_reason":"tool_calls"}]}`)
	}))
	defer srv.Close()

	c := ai.NewOpenAIClient("sk-test", "gpt-4o-mini", ai.WithBaseURL(srv.URL))
	msg, err := c.Complete(context.Background(), ai.Request{
		Messages: []ai.Message{
			{Role: ai.RoleUser, Content: "analyse"},
			{Role: ai.RoleAssistant, ToolCalls: []ai.ToolCall{{ID: "call_0", Name: "natural_risks", Arguments: json.RawMessage(`{"lat":1,"lon":2}`)}}},
			{Role: ai.RoleTool, ToolCallID: "call_0", Content: `{"level":"LOW"}`},
		},
		Tools: []ai.ToolSpec{toolSpec},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if msg.Role != ai.RoleAssistant || len(msg.ToolCalls) != 2 {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	if msg.ToolCalls[0].ID != "call_1" || string(msg.ToolCalls[0].Arguments) != `{"lat":40.4,"lon":-3.7}` {
		t.Errorf("tool call 0 = %+v", msg.ToolCalls[0])
	}
	if string(msg.ToolCalls[1].Arguments) != `"not json"` {
		t.Errorf("invalid arguments should be carried as a JSON string, got %s", msg.ToolCalls[1].Arguments)
	}
}

func TestOpenAI_TextReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"## Report"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	msg, err := ai.NewDeepSeekClient("k", "deepseek-chat", ai.WithBaseURL(srv.URL)).Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if msg.Content != "## Report" || len(msg.ToolCalls) != 0 {
		t.Errorf("unexpected reply: %+v", msg)
	}
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error body", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, "Incorrect API key"},
		{"non-json 502", http.StatusBadGateway, `<html>bad gateway</html>`, "502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := ai.NewOpenAIClient("k", "m", ai.WithBaseURL(srv.URL)).Complete(context.Background(), req)
			if !errors.Is(err, ai.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}
