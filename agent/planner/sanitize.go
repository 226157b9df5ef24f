package planner

import (
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
)

const (
	maxToolCalls = 6

	// WriteSource marks planner-originated facts; all writes in this path
	// come from the user's own message.
	WriteSource = "user_message"
)

type toolChecker interface {
	Has(name string) bool
}

// sanitizePlan normalizes a parsed plan: the call list is capped and the
// memory intent is cleaned or discarded. Unregistered tools stay in the plan;
// the executor rejects them with a configuration-error audit record, so every
// nomination leaves a ToolCallRecord.
func sanitizePlan(plan rawPlan, tools toolChecker) contractx.PlanningResult {
	calls := make([]contractx.ToolCall, 0, len(plan.ToolCalls))
	for _, call := range plan.ToolCalls {
		name := strings.TrimSpace(call.name())
		if name == "" {
			continue
		}
		if !tools.Has(name) {
			log.Warn().Str("tool", name).Msg("planner nominated unregistered tool")
		}
		if len(calls) == maxToolCalls {
			log.Warn().Int("limit", maxToolCalls).Msg("planner exceeded tool call limit, truncating")
			break
		}
		args := call.Args
		if args == nil {
			args = map[string]any{}
		}
		calls = append(calls, contractx.ToolCall{Tool: name, Args: args})
	}

	return contractx.PlanningResult{
		ToolCalls:       calls,
		Write:           sanitizeWrite(plan.Memory),
		NeedsCompletion: true,
		Rationale:       strings.TrimSpace(plan.Rationale),
	}
}

func sanitizeWrite(memory rawMemory) *contractx.WriteIntent {
	if !memory.Store {
		return nil
	}

	key := normalizeKey(memory.Key)
	value := normalizeValue(memory.Value)
	if key == "" || value == "" {
		return nil
	}

	return &contractx.WriteIntent{
		Key:        key,
		Value:      value,
		Confidence: clampConfidence(memory.Confidence),
		Source:     WriteSource,
	}
}

// normalizeKey lowercases and reduces the key to snake_case alphanumerics.
func normalizeKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	collapsed := b.String()
	for strings.Contains(collapsed, "__") {
		collapsed = strings.ReplaceAll(collapsed, "__", "_")
	}
	return strings.Trim(collapsed, "_")
}

func normalizeValue(value string) string {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.Trim(trimmed, `"'`)
	trimmed = strings.TrimRight(trimmed, ".!?")
	return strings.TrimSpace(trimmed)
}

func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
