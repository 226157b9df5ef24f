package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// plannerMarker is the line every planner system prompt starts with; the mock
// keys its behavior off it so planning and reply calls stay distinguishable.
const plannerMarker = "turn planner for"

// MockInvoker is a deterministic, credential-free backend for local runs and
// tests. Planner calls get well-formed plan JSON derived from simple phrase
// matching; reply calls get a templated answer.
type MockInvoker struct{}

func NewMockInvoker() *MockInvoker {
	return &MockInvoker{}
}

func (m *MockInvoker) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.Contains(strings.ToLower(systemPrompt), plannerMarker) {
		return m.planJSON(userPrompt), nil
	}
	return m.reply(userPrompt), nil
}

type mockPlan struct {
	ToolCalls []mockToolCall `json:"tool_calls"`
	Memory    mockMemory     `json:"memory"`
	Rationale string         `json:"rationale"`
}

type mockToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

type mockMemory struct {
	Store      bool    `json:"store"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

func (m *MockInvoker) planJSON(userPrompt string) string {
	message := lastUserMessage(userPrompt)
	lower := strings.ToLower(message)

	plan := mockPlan{
		ToolCalls: []mockToolCall{},
		Rationale: "mock plan",
	}

	if value := phraseTail(message, lower, "name is "); value != "" {
		plan.Memory = mockMemory{Store: true, Key: "name", Value: value, Confidence: 0.9}
	} else if value := phraseTail(message, lower, "i play "); value != "" {
		plan.Memory = mockMemory{Store: true, Key: "favorite_game", Value: value, Confidence: 0.8}
	}

	if query := phraseTail(message, lower, "search the web for "); query != "" {
		plan.ToolCalls = append(plan.ToolCalls, mockToolCall{
			Tool: "web_search",
			Args: map[string]any{"query": query},
		})
	} else if query := phraseTail(message, lower, "look up "); query != "" {
		plan.ToolCalls = append(plan.ToolCalls, mockToolCall{
			Tool: "web_search",
			Args: map[string]any{"query": query},
		})
	}

	if strings.Contains(lower, "what time") || strings.Contains(lower, "today's date") {
		plan.ToolCalls = append(plan.ToolCalls, mockToolCall{
			Tool: "current_datetime",
			Args: map[string]any{},
		})
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		return `{"tool_calls":[],"memory":{"store":false,"key":"","value":"","confidence":0},"rationale":"mock plan"}`
	}
	return string(raw)
}

func (m *MockInvoker) reply(userPrompt string) string {
	message := lastUserMessage(userPrompt)
	if message == "" {
		return "I'm here. What would you like to talk about?"
	}
	return fmt.Sprintf("You said: %s. I'm a mock model, but I'm listening.", message)
}

// lastUserMessage pulls the raw message out of a composed prompt, so phrase
// matching is not confused by context blocks.
func lastUserMessage(prompt string) string {
	const marker = "User message:"
	if idx := strings.LastIndex(prompt, marker); idx >= 0 {
		return strings.TrimSpace(prompt[idx+len(marker):])
	}
	return strings.TrimSpace(prompt)
}

// phraseTail returns the message text following phrase, trimmed of trailing
// punctuation. Matching is case-insensitive; the returned value keeps the
// original casing.
func phraseTail(message, lower, phrase string) string {
	idx := strings.Index(lower, phrase)
	if idx < 0 {
		return ""
	}
	tail := message[idx+len(phrase):]
	if cut := strings.IndexAny(tail, "\n"); cut >= 0 {
		tail = tail[:cut]
	}
	return strings.Trim(strings.TrimSpace(tail), ".!?")
}
