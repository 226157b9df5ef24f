package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/wrenhq/wren/agent/contract"
)

// rawPlan mirrors the JSON schema the planner prompt demands. Both "tool" and
// "tool_name" are accepted for the call name; models drift between the two.
type rawPlan struct {
	ToolCalls []rawToolCall `json:"tool_calls"`
	Memory    rawMemory     `json:"memory"`
	Rationale string        `json:"rationale"`
}

type rawToolCall struct {
	Tool     string         `json:"tool"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

func (c rawToolCall) name() string {
	if c.Tool != "" {
		return c.Tool
	}
	return c.ToolName
}

type rawMemory struct {
	Store      bool    `json:"store"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

func parsePlanOutput(output string) (rawPlan, error) {
	cleaned := stripCodeFences(output)
	object, ok := firstJSONObject(cleaned)
	if !ok {
		return rawPlan{}, fmt.Errorf("%w: planner output contains no JSON object", contractx.ErrSchemaViolation)
	}

	var plan rawPlan
	if err := json.Unmarshal([]byte(object), &plan); err != nil {
		return rawPlan{}, fmt.Errorf("%w: decode planner output: %v", contractx.ErrSchemaViolation, err)
	}
	return plan, nil
}

func stripCodeFences(output string) string {
	trimmed := strings.TrimSpace(output)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// firstJSONObject extracts the first balanced top-level object, tracking
// string literals so braces inside values do not break the balance.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
