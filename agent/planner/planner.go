package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
)

const (
	DecisionApplyPlan       = "apply_plan"
	DecisionFallbackNoTools = "fallback_no_tools"

	maxRecordedPayload = 4096
)

// ToolInventory is the registry view the planner needs: membership checks for
// sanitization and a rendered inventory for the prompt.
type ToolInventory interface {
	Has(name string) bool
	InventoryJSON() string
}

// Planner delegates turn planning to the model and validates the result. A
// model or schema failure yields a fallback plan instead of an error; every
// attempt leaves exactly one PlannerDecision in the audit sink.
type Planner struct {
	invoker      contractx.ModelInvoker
	tools        ToolInventory
	audit        contractx.AuditSink
	systemPrompt string
	now          func() time.Time
}

func New(invoker contractx.ModelInvoker, tools ToolInventory, audit contractx.AuditSink, plannerPrompt string) *Planner {
	return &Planner{
		invoker:      invoker,
		tools:        tools,
		audit:        audit,
		systemPrompt: plannerPrompt + "\n\nAvailable tools:\n" + tools.InventoryJSON(),
		now:          time.Now,
	}
}

// Plan produces the sanitized plan for one turn. outcomes carries prior tool
// results when the pipeline replans; it is empty on the first attempt.
func (p *Planner) Plan(ctx context.Context, req contractx.TurnRequest, memory contractx.MemoryContext, outcomes []contractx.ToolOutcome) contractx.PlanningResult {
	userPrompt := buildUserPrompt(req.Content, memory, outcomes)

	output, err := p.invoker.Complete(ctx, p.systemPrompt, userPrompt)
	if err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("planner model call failed, falling back")
		return p.fallback(ctx, req, err)
	}

	parsed, err := parsePlanOutput(output)
	if err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("planner output rejected, falling back")
		return p.fallback(ctx, req, err)
	}

	result := sanitizePlan(parsed, p.tools)
	p.record(ctx, req, contractx.PlannerDecision{
		Decision:  DecisionApplyPlan,
		Rationale: result.Rationale,
		Success:   true,
	}, result)
	return result
}

func (p *Planner) fallback(ctx context.Context, req contractx.TurnRequest, cause error) contractx.PlanningResult {
	result := contractx.PlanningResult{
		NeedsCompletion: true,
		Rationale:       "planner unavailable, answering without tools",
		Fallback:        true,
	}
	p.record(ctx, req, contractx.PlannerDecision{
		Decision:  DecisionFallbackNoTools,
		Rationale: result.Rationale,
		Success:   false,
		Error:     cause.Error(),
	}, result)
	return result
}

// record writes the decision through to the audit sink. Sink failures are
// logged and swallowed; auditing never fails a turn.
func (p *Planner) record(ctx context.Context, req contractx.TurnRequest, dec contractx.PlannerDecision, result contractx.PlanningResult) {
	dec.UserID = req.UserID
	dec.GuildID = req.GuildID
	dec.ChannelID = req.ChannelID
	dec.PayloadJSON = encodePayload(result)
	dec.Timestamp = p.now().UTC()

	if err := p.audit.RecordPlannerDecision(ctx, dec); err != nil {
		log.Warn().Err(err).Str("user_id", req.UserID).Msg("planner decision not recorded")
	}
}

func encodePayload(result contractx.PlanningResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf(`{"encode_error":%q}`, err.Error())
	}
	if len(raw) > maxRecordedPayload {
		raw = raw[:maxRecordedPayload]
	}
	return string(raw)
}

// buildUserPrompt composes the context block the way the reply prompts do, so
// the model sees one consistent shape per turn.
func buildUserPrompt(content string, memory contractx.MemoryContext, outcomes []contractx.ToolOutcome) string {
	var b strings.Builder

	if memory.Summary != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(memory.Summary)
		b.WriteString("\n\n")
	}
	if len(memory.RecentTurns) > 0 {
		b.WriteString("Recent conversation turns:\n")
		for _, turn := range memory.RecentTurns {
			fmt.Fprintf(&b, "- %s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}
	if len(memory.Facts) > 0 {
		b.WriteString("Known user facts:\n")
		for _, fact := range memory.Facts {
			fmt.Fprintf(&b, "- %s: %s\n", fact.Key, fact.Value)
		}
		b.WriteString("\n")
	}
	if len(outcomes) > 0 {
		b.WriteString("Tool outputs so far:\n")
		for _, outcome := range outcomes {
			if outcome.Success {
				fmt.Fprintf(&b, "- %s: %s\n", outcome.Tool, outcome.Text)
			} else {
				fmt.Fprintf(&b, "- %s: failed (%s)\n", outcome.Tool, outcome.Error)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("User message: ")
	b.WriteString(content)
	return b.String()
}
