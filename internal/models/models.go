package models

import (
	"fmt"
	"time"
)

// Message is a single conversational message in the canonical schema.
// Roles are passed through unvalidated; providers interpret them.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the canonical representation of a chat completion.
// Provider, when set, names the target provider explicitly and bypasses
// model-based resolution.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Provider    string    `json:"provider,omitempty"`
}

// ChatResponse is the canonical OpenAI-compatible response shape returned
// for every provider, regardless of the upstream wire format.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice holds a single completion candidate. Normalization keeps only the
// first upstream candidate, so Choices always has length one.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage records token accounting counters.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the legacy text-completion response shape.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
}

// CompletionChoice holds a single text-completion candidate.
type CompletionChoice struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	FinishReason string `json:"finish_reason"`
}

// ModelInfo describes one model in the /v1/models listing.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// PlaceholderUsage returns the fixed token counters reported when upstream
// accounting is unavailable. Usage is always present in a response, never
// omitted; real accounting is intentionally not propagated.
func PlaceholderUsage() Usage {
	return Usage{
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
	}
}

// NewChatResponse builds a canonical single-choice response with a
// timestamp-derived ID and placeholder usage counters.
func NewChatResponse(model, role, content, finishReason string) *ChatResponse {
	now := time.Now()
	if role == "" {
		role = "assistant"
	}
	if finishReason == "" {
		finishReason = "stop"
	}

	return &ChatResponse{
		ID:      fmt.Sprintf("chatcmpl-%d", now.UnixNano()),
		Object:  "chat.completion",
		Created: now.Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      Message{Role: role, Content: content},
				FinishReason: finishReason,
			},
		},
		Usage: PlaceholderUsage(),
	}
}

// ToCompletion reshapes a chat response into the legacy text-completion
// form, carrying over model, timing and usage.
func (r *ChatResponse) ToCompletion() *CompletionResponse {
	resp := &CompletionResponse{
		ID:      fmt.Sprintf("cmpl-%d", time.Now().UnixNano()),
		Object:  "text_completion",
		Created: r.Created,
		Model:   r.Model,
		Usage:   r.Usage,
	}
	for i, choice := range r.Choices {
		resp.Choices = append(resp.Choices, CompletionChoice{
			Text:         choice.Message.Content,
			Index:        i,
			FinishReason: choice.FinishReason,
		})
	}
	return resp
}
