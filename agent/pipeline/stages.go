package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
	executorx "github.com/wrenhq/wren/agent/executor"
)

// Collaborator contracts, narrowed to what the turn needs. The concrete
// implementations live in their own packages.
type contextAssembler interface {
	Assemble(ctx context.Context, userID, guildID, channelID string) contractx.MemoryContext
}

type turnPlanner interface {
	Plan(ctx context.Context, req contractx.TurnRequest, memory contractx.MemoryContext, outcomes []contractx.ToolOutcome) contractx.PlanningResult
}

type toolExecutor interface {
	Execute(ctx context.Context, req contractx.TurnRequest, calls []contractx.ToolCall, source string) []contractx.ToolOutcome
}

type memoryReconciler interface {
	Reconcile(ctx context.Context, userID string, intent *contractx.WriteIntent) error
}

type safetyScanner interface {
	Scan(content string) []string
}

type stageTiming struct {
	name     string
	duration time.Duration
}

// turnState flows through the graph; nothing in it is shared between turns.
type turnState struct {
	req         contractx.TurnRequest
	safetyFlags []string
	memory      contractx.MemoryContext
	plan        contractx.PlanningResult
	outcomes    []contractx.ToolOutcome
	replanned   bool
	replyText   string

	startedAt time.Time
	timings   []stageTiming
}

func (p *Pipeline) validate(in contractx.TurnRequest) (*turnState, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is empty", contractx.ErrValidation)
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: message content is empty", contractx.ErrValidation)
	}

	in.Content = content
	if strings.TrimSpace(in.GuildID) == "" {
		in.GuildID = "dm"
	}
	if strings.TrimSpace(in.ChannelID) == "" {
		in.ChannelID = "dm"
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = p.now().UTC()
	}

	return &turnState{
		req:         in,
		safetyFlags: p.safety.Scan(content),
		startedAt:   p.now(),
	}, nil
}

func (p *Pipeline) assemble(ctx context.Context, state *turnState) {
	state.memory = p.assembler.Assemble(ctx, state.req.UserID, state.req.GuildID, state.req.ChannelID)
}

func (p *Pipeline) recordUserTurn(ctx context.Context, state *turnState) {
	err := p.store.AppendTurn(ctx, contractx.ConversationTurn{
		UserID:    state.req.UserID,
		GuildID:   state.req.GuildID,
		ChannelID: state.req.ChannelID,
		Role:      contractx.RoleUser,
		Content:   state.req.Content,
		Timestamp: state.req.ReceivedAt,
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", state.req.UserID).Msg("user turn not persisted")
	}
}

func (p *Pipeline) plan(ctx context.Context, state *turnState) {
	state.plan = p.planner.Plan(ctx, state.req, state.memory, nil)
}

// executeTools runs the planned calls, then replans at most once with the
// results in view. Follow-up calls from the replan run too; a second replan
// never happens.
func (p *Pipeline) executeTools(ctx context.Context, state *turnState) {
	if len(state.plan.ToolCalls) == 0 {
		return
	}

	state.outcomes = p.executor.Execute(ctx, state.req, state.plan.ToolCalls, executorx.SourcePlan)
	if p.maxReplans < 1 {
		return
	}

	replan := p.planner.Plan(ctx, state.req, state.memory, state.outcomes)
	state.replanned = true
	if replan.Fallback {
		return
	}
	if state.plan.Write == nil && replan.Write != nil {
		state.plan.Write = replan.Write
	}
	if len(replan.ToolCalls) == 0 {
		return
	}

	state.plan.ToolCalls = append(state.plan.ToolCalls, replan.ToolCalls...)
	more := p.executor.Execute(ctx, state.req, replan.ToolCalls, executorx.SourceReplan)
	state.outcomes = append(state.outcomes, more...)
}

func (p *Pipeline) reconcile(ctx context.Context, state *turnState) {
	if err := p.reconciler.Reconcile(ctx, state.req.UserID, state.plan.Write); err != nil {
		log.Warn().Err(err).Str("user_id", state.req.UserID).Msg("memory write skipped")
	}
}

// complete produces the reply text. This is the only stage allowed to abort
// the turn.
func (p *Pipeline) complete(ctx context.Context, state *turnState) error {
	systemPrompt := p.prompts.Reply
	if len(state.outcomes) > 0 {
		systemPrompt = p.prompts.ToolReply
	}

	text, err := p.invoker.Complete(ctx, systemPrompt, completionPrompt(state))
	if err != nil {
		if !errors.Is(err, contractx.ErrModelInvoke) {
			err = fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: completion returned empty reply", contractx.ErrModelInvoke)
	}
	state.replyText = text
	return nil
}

func (p *Pipeline) recordAssistantTurn(ctx context.Context, state *turnState) {
	err := p.store.AppendTurn(ctx, contractx.ConversationTurn{
		UserID:    state.req.UserID,
		GuildID:   state.req.GuildID,
		ChannelID: state.req.ChannelID,
		Role:      contractx.RoleAssistant,
		Content:   state.replyText,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("user_id", state.req.UserID).Msg("assistant turn not persisted")
	}
}

func (p *Pipeline) finalize(state *turnState) contractx.TurnReply {
	elapsed := p.now().Sub(state.startedAt)
	slow := elapsed > p.slowThreshold

	reply := contractx.TurnReply{
		Text:        state.replyText,
		Citations:   collectCitations(state.outcomes),
		ToolCalls:   state.plan.ToolCalls,
		SafetyFlags: state.safetyFlags,
		Slow:        slow,
	}

	event := log.Info()
	if slow {
		event = log.Warn()
	}
	for _, timing := range state.timings {
		event = event.Dur(timing.name, timing.duration)
	}
	event.
		Str("user_id", state.req.UserID).
		Str("guild_id", state.req.GuildID).
		Str("channel_id", state.req.ChannelID).
		Int("tool_calls", len(state.outcomes)).
		Bool("replanned", state.replanned).
		Bool("slow", slow).
		Dur("elapsed", elapsed).
		Msg("turn finished")

	return reply
}

// completionPrompt renders the same context block the planner sees, plus the
// tool outputs the reply should draw on.
func completionPrompt(state *turnState) string {
	var b strings.Builder

	if state.memory.Summary != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(state.memory.Summary)
		b.WriteString("\n\n")
	}
	if len(state.memory.RecentTurns) > 0 {
		b.WriteString("Recent conversation turns:\n")
		for _, turn := range state.memory.RecentTurns {
			fmt.Fprintf(&b, "- %s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}
	if len(state.memory.Facts) > 0 {
		b.WriteString("Known user facts:\n")
		for _, fact := range state.memory.Facts {
			fmt.Fprintf(&b, "- %s: %s\n", fact.Key, fact.Value)
		}
		b.WriteString("\n")
	}
	if len(state.outcomes) > 0 {
		b.WriteString("Tool outputs:\n")
		for _, outcome := range state.outcomes {
			if outcome.Success {
				fmt.Fprintf(&b, "- %s: %s\n", outcome.Tool, outcome.Text)
			} else {
				fmt.Fprintf(&b, "- %s: unavailable (%s)\n", outcome.Tool, outcome.Error)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("User message: ")
	b.WriteString(state.req.Content)
	return b.String()
}

// collectCitations dedupes in arrival order across all outcomes.
func collectCitations(outcomes []contractx.ToolOutcome) []string {
	seen := make(map[string]bool)
	var citations []string
	for _, outcome := range outcomes {
		for _, citation := range outcome.Citations {
			if citation == "" || seen[citation] {
				continue
			}
			seen[citation] = true
			citations = append(citations, citation)
		}
	}
	return citations
}
