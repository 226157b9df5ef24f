package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/wrenhq/wren/agent/contract"
	promptx "github.com/wrenhq/wren/agent/prompt"
)

const DefaultSlowThreshold = 30 * time.Second

// Config tunes per-turn behavior; zero values pick the defaults.
type Config struct {
	SlowThreshold time.Duration
	MaxReplans    int
}

// Pipeline drives one turn end to end: context assembly, planning, tool
// execution, memory reconciliation, completion, persistence. Compiled once;
// Invoke is safe for concurrent turns.
type Pipeline struct {
	assembler  contextAssembler
	planner    turnPlanner
	executor   toolExecutor
	reconciler memoryReconciler
	invoker    contractx.ModelInvoker
	store      contractx.MemoryStore
	safety     safetyScanner
	prompts    promptx.PromptSet

	graphRunner compose.Runnable[contractx.TurnRequest, contractx.TurnReply]

	slowThreshold time.Duration
	maxReplans    int
	now           func() time.Time
}

func New(
	asm contextAssembler,
	pln turnPlanner,
	exec toolExecutor,
	rec memoryReconciler,
	invoker contractx.ModelInvoker,
	store contractx.MemoryStore,
	safety safetyScanner,
	prompts promptx.PromptSet,
	cfg Config,
) (*Pipeline, error) {
	if asm == nil || pln == nil || exec == nil || rec == nil {
		return nil, errors.New("pipeline collaborators are required")
	}
	if invoker == nil {
		return nil, errors.New("model invoker is required")
	}
	if store == nil {
		return nil, errors.New("memory store is required")
	}
	if safety == nil {
		return nil, errors.New("safety policy is required")
	}

	slowThreshold := cfg.SlowThreshold
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	maxReplans := cfg.MaxReplans
	if maxReplans < 0 {
		maxReplans = 0
	}
	if maxReplans > 1 {
		maxReplans = 1
	}

	p := &Pipeline{
		assembler:     asm,
		planner:       pln,
		executor:      exec,
		reconciler:    rec,
		invoker:       invoker,
		store:         store,
		safety:        safety,
		prompts:       prompts,
		slowThreshold: slowThreshold,
		maxReplans:    maxReplans,
		now:           time.Now,
	}

	graphRunner, err := p.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.graphRunner = graphRunner

	return p, nil
}

// HandleTurn processes one inbound message and returns the reply. Callers
// needing per-channel ordering go through the Dispatcher instead.
func (p *Pipeline) HandleTurn(ctx context.Context, req contractx.TurnRequest) (contractx.TurnReply, error) {
	return p.graphRunner.Invoke(ctx, req)
}

// timed wraps a stage so its duration lands in the turn telemetry.
func (p *Pipeline) timed(name string, stage func(ctx context.Context, state *turnState)) func(ctx context.Context, state *turnState) (*turnState, error) {
	return func(ctx context.Context, state *turnState) (*turnState, error) {
		started := p.now()
		stage(ctx, state)
		state.timings = append(state.timings, stageTiming{name: name, duration: p.now().Sub(started)})
		return state, nil
	}
}

func (p *Pipeline) compileTurnGraph(ctx context.Context) (compose.Runnable[contractx.TurnRequest, contractx.TurnReply], error) {
	graph := compose.NewGraph[contractx.TurnRequest, contractx.TurnReply]()

	if err := graph.AddLambdaNode("validate",
		compose.InvokableLambda(func(ctx context.Context, in contractx.TurnRequest) (*turnState, error) {
			return p.validate(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate: %w", err)
	}

	if err := graph.AddLambdaNode("assemble_context",
		compose.InvokableLambda(p.timed("assemble", p.assemble)),
	); err != nil {
		return nil, fmt.Errorf("add node assemble_context: %w", err)
	}

	if err := graph.AddLambdaNode("record_user_turn",
		compose.InvokableLambda(p.timed("record_user_turn", p.recordUserTurn)),
	); err != nil {
		return nil, fmt.Errorf("add node record_user_turn: %w", err)
	}

	if err := graph.AddLambdaNode("plan",
		compose.InvokableLambda(p.timed("plan", p.plan)),
	); err != nil {
		return nil, fmt.Errorf("add node plan: %w", err)
	}

	if err := graph.AddLambdaNode("execute_tools",
		compose.InvokableLambda(p.timed("execute_tools", p.executeTools)),
	); err != nil {
		return nil, fmt.Errorf("add node execute_tools: %w", err)
	}

	if err := graph.AddLambdaNode("reconcile_memory",
		compose.InvokableLambda(p.timed("reconcile", p.reconcile)),
	); err != nil {
		return nil, fmt.Errorf("add node reconcile_memory: %w", err)
	}

	if err := graph.AddLambdaNode("complete",
		compose.InvokableLambda(func(ctx context.Context, state *turnState) (*turnState, error) {
			started := p.now()
			err := p.complete(ctx, state)
			state.timings = append(state.timings, stageTiming{name: "complete", duration: p.now().Sub(started)})
			if err != nil {
				return nil, err
			}
			return state, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node complete: %w", err)
	}

	if err := graph.AddLambdaNode("record_assistant_turn",
		compose.InvokableLambda(p.timed("record_assistant_turn", p.recordAssistantTurn)),
	); err != nil {
		return nil, fmt.Errorf("add node record_assistant_turn: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, state *turnState) (contractx.TurnReply, error) {
			return p.finalize(state), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate"},
		{"validate", "assemble_context"},
		{"assemble_context", "record_user_turn"},
		{"record_user_turn", "plan"},
		{"plan", "execute_tools"},
		{"execute_tools", "reconcile_memory"},
		{"reconcile_memory", "complete"},
		{"complete", "record_assistant_turn"},
		{"record_assistant_turn", "finalize"},
		{"finalize", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	graphRunner, err := graph.Compile(ctx, compose.WithGraphName("pipeline.handle_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return graphRunner, nil
}
