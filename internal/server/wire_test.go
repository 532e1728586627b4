package server

import (
	"encoding/json"
	"testing"
)

func TestChatRequestContentForms(t *testing.T) {
	var req chatCompletionRequest
	payload := `{
		"model": "gpt-4",
		"messages": [
			{"role": "user", "content": "plain"},
			{"role": "user", "content": [{"type": "text", "text": "part one "}, {"type": "text", "text": "part two"}]}
		]
	}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if req.Messages[0].Content != "plain" {
		t.Errorf("string content = %q", req.Messages[0].Content)
	}
	if req.Messages[1].Content != "part one part two" {
		t.Errorf("array content = %q, want flattened parts", req.Messages[1].Content)
	}
}

func TestChatRequestRejectsBadContent(t *testing.T) {
	var req chatCompletionRequest
	payload := `{"model":"gpt-4","messages":[{"role":"user","content":{"nested":"object"}}]}`
	if err := json.Unmarshal([]byte(payload), &req); err == nil {
		t.Fatal("unmarshal accepted object-valued content")
	}
}

func TestChatRequestToCanonical(t *testing.T) {
	var req chatCompletionRequest
	payload := `{"model":" gpt-4 ","messages":[{"role":"user","content":"hi"}],"temperature":0.5,"max_tokens":64,"provider":"claude"}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	canonical := req.toCanonical()
	if canonical.Model != "gpt-4" {
		t.Errorf("model = %q, want trimmed gpt-4", canonical.Model)
	}
	if canonical.Provider != "claude" {
		t.Errorf("provider override = %q, want claude", canonical.Provider)
	}
	if canonical.Temperature == nil || *canonical.Temperature != 0.5 {
		t.Errorf("temperature = %v, want 0.5", canonical.Temperature)
	}
	if canonical.MaxTokens == nil || *canonical.MaxTokens != 64 {
		t.Errorf("max_tokens = %v, want 64", canonical.MaxTokens)
	}
}
