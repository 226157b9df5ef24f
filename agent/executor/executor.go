package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
)

const DefaultCallTimeout = 15 * time.Second

// Sources recorded on audit rows, naming which planning pass requested the call.
const (
	SourcePlan   = "plan"
	SourceReplan = "replan"
)

type toolLookup interface {
	Lookup(name string) (contractx.Tool, bool)
}

// Executor runs a plan's tool calls concurrently. Every requested call yields
// exactly one ToolCallRecord and one outcome, in plan order; a failing call
// never touches its siblings.
type Executor struct {
	tools       toolLookup
	audit       contractx.AuditSink
	callTimeout time.Duration
	now         func() time.Time
}

func New(tools toolLookup, audit contractx.AuditSink, callTimeout time.Duration) *Executor {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Executor{tools: tools, audit: audit, callTimeout: callTimeout, now: time.Now}
}

func (e *Executor) Execute(ctx context.Context, req contractx.TurnRequest, calls []contractx.ToolCall, source string) []contractx.ToolOutcome {
	outcomes := make([]contractx.ToolOutcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call contractx.ToolCall) {
			defer wg.Done()
			outcomes[i] = e.runOne(ctx, req, call, source)
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (e *Executor) runOne(ctx context.Context, req contractx.TurnRequest, call contractx.ToolCall, source string) contractx.ToolOutcome {
	started := e.now()

	impl, ok := e.tools.Lookup(call.Tool)
	var outcome contractx.ToolOutcome
	if !ok {
		err := fmt.Errorf("%w: tool %q is not registered", contractx.ErrConfiguration, call.Tool)
		outcome = contractx.ToolOutcome{Tool: call.Tool, Error: err.Error()}
	} else {
		callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		result, err := impl.Invoke(callCtx, call.Args)
		cancel()
		outcome = normalizeOutcome(call.Tool, result, err)
	}

	duration := e.now().Sub(started)
	if outcome.Success {
		log.Debug().
			Str("tool", call.Tool).
			Str("user_id", req.UserID).
			Dur("duration", duration).
			Msg("tool call completed")
	} else {
		log.Warn().
			Str("tool", call.Tool).
			Str("user_id", req.UserID).
			Str("error", outcome.Error).
			Dur("duration", duration).
			Msg("tool call failed")
	}

	e.record(ctx, req, call, outcome, source)
	return outcome
}

func normalizeOutcome(tool string, result contractx.ToolOutcome, err error) contractx.ToolOutcome {
	if err != nil {
		message := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			message = fmt.Sprintf("%v: tool call timed out", contractx.ErrTransient)
		}
		return contractx.ToolOutcome{Tool: tool, Error: message}
	}
	result.Tool = tool
	return result
}

// record writes the audit row for one call. Sink failures are logged and
// swallowed; auditing never fails a turn.
func (e *Executor) record(ctx context.Context, req contractx.TurnRequest, call contractx.ToolCall, outcome contractx.ToolOutcome, source string) {
	rec := contractx.ToolCallRecord{
		UserID:     req.UserID,
		GuildID:    req.GuildID,
		ChannelID:  req.ChannelID,
		ToolName:   call.Tool,
		Source:     source,
		ArgsJSON:   encodeArgs(call.Args),
		ResultText: outcome.Text,
		Citations:  outcome.Citations,
		Success:    outcome.Success,
		Error:      outcome.Error,
		Timestamp:  e.now().UTC(),
	}
	if err := e.audit.RecordToolCall(ctx, rec); err != nil {
		log.Warn().Err(err).Str("tool", call.Tool).Msg("tool call not recorded")
	}
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf(`{"encode_error":%q}`, err.Error())
	}
	return string(raw)
}
