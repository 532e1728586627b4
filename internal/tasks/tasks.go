// Package tasks builds canonical chat requests from development-assistant
// task descriptions and wraps adapter responses into the task envelope.
package tasks

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"zeke-gateway/internal/models"
)

// Kind names one assistant task.
type Kind string

const (
	Complete Kind = "complete"
	Analyze  Kind = "analyze"
	Explain  Kind = "explain"
	Refactor Kind = "refactor"
	Test     Kind = "test"
	Terminal Kind = "terminal"
	Project  Kind = "project"
)

// Request carries the free-form fields of a task call. Every field is
// optional; templates interpolate whatever is present.
type Request struct {
	Code        string `json:"code,omitempty"`
	Context     string `json:"context,omitempty"`
	Language    string `json:"language,omitempty"`
	Task        string `json:"task,omitempty"`
	Command     string `json:"command,omitempty"`
	Shell       string `json:"shell,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	Model       string `json:"model,omitempty"`
}

// Envelope is the task-layer response shape. Failures travel inside the
// envelope (type "error", status "error") rather than failing the request.
type Envelope struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// policy fixes sampling parameters per task kind. Completion runs cold for
// determinism; analysis and refactoring get the widest token budget.
type policy struct {
	temperature float64
	maxTokens   int
}

type definition struct {
	system string
	policy policy
	build  func(req Request) string
}

var definitions = map[Kind]definition{
	Complete: {
		system: "You are an expert programmer. Continue the provided code naturally. Reply with code only, no commentary.",
		policy: policy{temperature: 0.2, maxTokens: 256},
		build: func(req Request) string {
			return joinSections(
				fmt.Sprintf("Complete the following %s code:", languageOr(req, "source")),
				codeBlock(req),
				contextSection(req),
			)
		},
	},
	Analyze: {
		system: "You are a meticulous code reviewer. Identify bugs, performance problems and style issues, ordered by severity.",
		policy: policy{temperature: 0.3, maxTokens: 4096},
		build: func(req Request) string {
			return joinSections(
				fmt.Sprintf("Analyze the following %s code:", languageOr(req, "source")),
				codeBlock(req),
				contextSection(req),
				taskSection(req),
			)
		},
	},
	Explain: {
		system: "You are a patient teacher. Explain what the code does and why, in plain language.",
		policy: policy{temperature: 0.5, maxTokens: 1024},
		build: func(req Request) string {
			return joinSections(
				fmt.Sprintf("Explain the following %s code:", languageOr(req, "source")),
				codeBlock(req),
				contextSection(req),
			)
		},
	},
	Refactor: {
		system: "You are an expert software engineer. Refactor the code for clarity and maintainability without changing behaviour. Reply with the refactored code followed by a short summary of the changes.",
		policy: policy{temperature: 0.3, maxTokens: 4096},
		build: func(req Request) string {
			return joinSections(
				fmt.Sprintf("Refactor the following %s code:", languageOr(req, "source")),
				codeBlock(req),
				contextSection(req),
				taskSection(req),
			)
		},
	},
	Test: {
		system: "You are an expert in automated testing. Write focused unit tests covering the important paths and edge cases. Reply with test code only.",
		policy: policy{temperature: 0.2, maxTokens: 2048},
		build: func(req Request) string {
			return joinSections(
				fmt.Sprintf("Generate tests for the following %s code:", languageOr(req, "source")),
				codeBlock(req),
				contextSection(req),
			)
		},
	},
	Terminal: {
		system: "You are a terminal assistant. Suggest the exact command to run and explain it in one sentence.",
		policy: policy{temperature: 0.4, maxTokens: 512},
		build: func(req Request) string {
			shell := req.Shell
			if shell == "" {
				shell = "sh"
			}
			return joinSections(
				fmt.Sprintf("Shell: %s", shell),
				fmt.Sprintf("Goal or command: %s", firstNonEmpty(req.Command, req.Task)),
				contextSection(req),
			)
		},
	},
	Project: {
		system: "You are a software architect. Assess the project structure and suggest concrete improvements.",
		policy: policy{temperature: 0.3, maxTokens: 4096},
		build: func(req Request) string {
			return joinSections(
				fmt.Sprintf("Analyze the project at %s.", firstNonEmpty(req.ProjectPath, "the current directory")),
				fmt.Sprintf("Primary language: %s", languageOr(req, "unknown")),
				contextSection(req),
			)
		},
	},
}

// Build synthesizes the two-message canonical chat request for a task: the
// kind's fixed system instruction plus an interpolated user message. When
// the request names no model, defaultModel is used.
func Build(kind Kind, req Request, defaultModel string) (models.ChatRequest, error) {
	def, ok := definitions[kind]
	if !ok {
		return models.ChatRequest{}, fmt.Errorf("unknown task kind %q", kind)
	}

	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}

	temperature := def.policy.temperature
	maxTokens := def.policy.maxTokens

	return models.ChatRequest{
		Model: model,
		Messages: []models.Message{
			{Role: "system", Content: def.system},
			{Role: "user", Content: def.build(req)},
		},
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}, nil
}

// Wrap re-wraps a canonical response into the task envelope.
func Wrap(kind Kind, resp *models.ChatResponse) Envelope {
	if resp == nil || len(resp.Choices) == 0 {
		return WrapError(kind, fmt.Errorf("provider returned an empty response"))
	}

	return Envelope{
		Type:      string(kind),
		Content:   resp.Choices[0].Message.Content,
		RequestID: uuid.NewString(),
		Timestamp: time.Now().Unix(),
		Status:    "success",
	}
}

// WrapError produces the error-shaped envelope for a failed task.
func WrapError(kind Kind, err error) Envelope {
	return Envelope{
		Type:      "error",
		Message:   err.Error(),
		RequestID: uuid.NewString(),
		Timestamp: time.Now().Unix(),
		Status:    "error",
	}
}

func languageOr(req Request, fallback string) string {
	if strings.TrimSpace(req.Language) == "" {
		return fallback
	}
	return req.Language
}

func codeBlock(req Request) string {
	if strings.TrimSpace(req.Code) == "" {
		return ""
	}
	return "```" + req.Language + "\n" + req.Code + "\n```"
}

func contextSection(req Request) string {
	if strings.TrimSpace(req.Context) == "" {
		return ""
	}
	return "Context: " + req.Context
}

func taskSection(req Request) string {
	if strings.TrimSpace(req.Task) == "" {
		return ""
	}
	return "Focus: " + req.Task
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinSections(sections ...string) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
