package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	assemblerx "github.com/wrenhq/wren/agent/assembler"
	contractx "github.com/wrenhq/wren/agent/contract"
	executorx "github.com/wrenhq/wren/agent/executor"
	memoryx "github.com/wrenhq/wren/agent/memory"
	plannerx "github.com/wrenhq/wren/agent/planner"
	promptx "github.com/wrenhq/wren/agent/prompt"
	reconcilerx "github.com/wrenhq/wren/agent/reconciler"
	safetyx "github.com/wrenhq/wren/agent/safety"
	toolx "github.com/wrenhq/wren/agent/tool"
)

type fakeAssembler struct {
	memory contractx.MemoryContext
}

func (f *fakeAssembler) Assemble(ctx context.Context, userID, guildID, channelID string) contractx.MemoryContext {
	return f.memory
}

type fakePlanner struct {
	plans []contractx.PlanningResult
	calls int

	lastOutcomes []contractx.ToolOutcome
}

func (f *fakePlanner) Plan(ctx context.Context, req contractx.TurnRequest, memory contractx.MemoryContext, outcomes []contractx.ToolOutcome) contractx.PlanningResult {
	f.lastOutcomes = outcomes
	plan := contractx.PlanningResult{NeedsCompletion: true}
	if f.calls < len(f.plans) {
		plan = f.plans[f.calls]
	}
	f.calls++
	return plan
}

type executedBatch struct {
	calls  []contractx.ToolCall
	source string
}

type fakeExecutor struct {
	batches  []executedBatch
	outcomes map[string]contractx.ToolOutcome
}

func (f *fakeExecutor) Execute(ctx context.Context, req contractx.TurnRequest, calls []contractx.ToolCall, source string) []contractx.ToolOutcome {
	f.batches = append(f.batches, executedBatch{calls: calls, source: source})
	outcomes := make([]contractx.ToolOutcome, len(calls))
	for i, call := range calls {
		if outcome, ok := f.outcomes[call.Tool]; ok {
			outcomes[i] = outcome
		} else {
			outcomes[i] = contractx.ToolOutcome{Tool: call.Tool, Text: call.Tool + " output", Success: true}
		}
	}
	return outcomes
}

type fakeReconciler struct {
	intents []*contractx.WriteIntent
	err     error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, userID string, intent *contractx.WriteIntent) error {
	if intent != nil {
		f.intents = append(f.intents, intent)
	}
	return f.err
}

type fakeInvoker struct {
	reply string
	err   error

	lastSystem string
	lastUser   string
}

func (f *fakeInvoker) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeTurnStore struct {
	mu       sync.Mutex
	turns    []contractx.ConversationTurn
	turnsErr error
}

func (f *fakeTurnStore) Facts(ctx context.Context, userID string) ([]contractx.MemoryFact, error) {
	return nil, nil
}
func (f *fakeTurnStore) Summary(ctx context.Context, userID, guildID, channelID string) (*contractx.ConversationSummary, error) {
	return nil, nil
}
func (f *fakeTurnStore) RecentTurns(ctx context.Context, guildID, channelID string, limit int) ([]contractx.ConversationTurn, error) {
	return nil, nil
}
func (f *fakeTurnStore) UpsertFact(ctx context.Context, fact contractx.MemoryFact) error { return nil }
func (f *fakeTurnStore) AppendTurn(ctx context.Context, turn contractx.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turnsErr != nil {
		return f.turnsErr
	}
	f.turns = append(f.turns, turn)
	return nil
}
func (f *fakeTurnStore) PutSummary(ctx context.Context, summary contractx.ConversationSummary) error {
	return nil
}

type fakeSafety struct{ flags []string }

func (f *fakeSafety) Scan(content string) []string { return f.flags }

func prompts() promptx.PromptSet {
	return promptx.PromptSet{Planner: "planner", Reply: "reply", ToolReply: "tool reply"}
}

type deps struct {
	assembler  *fakeAssembler
	planner    *fakePlanner
	executor   *fakeExecutor
	reconciler *fakeReconciler
	invoker    *fakeInvoker
	store      *fakeTurnStore
	safety     *fakeSafety
}

func newDeps() *deps {
	return &deps{
		assembler:  &fakeAssembler{},
		planner:    &fakePlanner{},
		executor:   &fakeExecutor{},
		reconciler: &fakeReconciler{},
		invoker:    &fakeInvoker{reply: "here you go"},
		store:      &fakeTurnStore{},
		safety:     &fakeSafety{},
	}
}

func newPipeline(t *testing.T, d *deps, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(d.assembler, d.planner, d.executor, d.reconciler, d.invoker, d.store, d.safety, prompts(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func request() contractx.TurnRequest {
	return contractx.TurnRequest{MessageID: "m1", UserID: "u1", GuildID: "g1", ChannelID: "c1", Content: "hello"}
}

func TestHandleTurnPlainChat(t *testing.T) {
	t.Parallel()

	d := newDeps()
	p := newPipeline(t, d, Config{MaxReplans: 1})

	reply, err := p.HandleTurn(context.Background(), request())
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if reply.Text != "here you go" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Slow {
		t.Fatal("fast turn must not be flagged slow")
	}

	if d.planner.calls != 1 {
		t.Fatalf("plan without tools must not replan, planner calls = %d", d.planner.calls)
	}
	if d.invoker.lastSystem != "reply" {
		t.Fatalf("plain chat must use the reply prompt, got %q", d.invoker.lastSystem)
	}

	if len(d.store.turns) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(d.store.turns))
	}
	if d.store.turns[0].Role != contractx.RoleUser || d.store.turns[1].Role != contractx.RoleAssistant {
		t.Fatalf("turn roles out of order: %+v", d.store.turns)
	}
	if d.store.turns[1].Content != "here you go" {
		t.Fatalf("assistant turn must carry the reply: %+v", d.store.turns[1])
	}
}

func TestHandleTurnWithToolsAndReplan(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.planner.plans = []contractx.PlanningResult{
		{
			ToolCalls:       []contractx.ToolCall{{Tool: "web_search", Args: map[string]any{"query": "go"}}},
			Write:           &contractx.WriteIntent{Key: "name", Value: "Petr", Confidence: 0.9},
			NeedsCompletion: true,
		},
		{
			ToolCalls:       []contractx.ToolCall{{Tool: "current_datetime"}},
			NeedsCompletion: true,
		},
	}
	d.executor.outcomes = map[string]contractx.ToolOutcome{
		"web_search": {Tool: "web_search", Text: "search results", Citations: []string{"https://go.dev"}, Success: true},
	}
	p := newPipeline(t, d, Config{MaxReplans: 1})

	reply, err := p.HandleTurn(context.Background(), request())
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	if d.planner.calls != 2 {
		t.Fatalf("expected exactly one replan, planner calls = %d", d.planner.calls)
	}
	if len(d.planner.lastOutcomes) == 0 {
		t.Fatal("replan must see the first batch's outcomes")
	}

	if len(d.executor.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(d.executor.batches))
	}
	if d.executor.batches[0].source != executorx.SourcePlan || d.executor.batches[1].source != executorx.SourceReplan {
		t.Fatalf("unexpected batch sources: %+v", d.executor.batches)
	}

	if len(d.reconciler.intents) != 1 || d.reconciler.intents[0].Key != "name" {
		t.Fatalf("unexpected reconciled intents: %+v", d.reconciler.intents)
	}

	if d.invoker.lastSystem != "tool reply" {
		t.Fatalf("tool turn must use the tool reply prompt, got %q", d.invoker.lastSystem)
	}
	if !strings.Contains(d.invoker.lastUser, "search results") {
		t.Fatalf("completion prompt missing tool output:\n%s", d.invoker.lastUser)
	}

	if len(reply.Citations) != 1 || reply.Citations[0] != "https://go.dev" {
		t.Fatalf("unexpected citations: %v", reply.Citations)
	}
}

func TestHandleTurnReplanDisabled(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.planner.plans = []contractx.PlanningResult{
		{ToolCalls: []contractx.ToolCall{{Tool: "web_search"}}, NeedsCompletion: true},
	}
	p := newPipeline(t, d, Config{MaxReplans: 0})

	if _, err := p.HandleTurn(context.Background(), request()); err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if d.planner.calls != 1 {
		t.Fatalf("replans disabled, planner calls = %d", d.planner.calls)
	}
	if len(d.executor.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(d.executor.batches))
	}
}

func TestHandleTurnValidation(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, newDeps(), Config{})

	for _, req := range []contractx.TurnRequest{
		{UserID: "", Content: "hi"},
		{UserID: "u1", Content: "   "},
	} {
		_, err := p.HandleTurn(context.Background(), req)
		if !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("request %+v: expected ErrValidation, got %v", req, err)
		}
	}
}

func TestHandleTurnCompletionFailureAborts(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.invoker.err = fmt.Errorf("%w: upstream 500", contractx.ErrModelInvoke)
	p := newPipeline(t, d, Config{})

	_, err := p.HandleTurn(context.Background(), request())
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}

	if len(d.store.turns) != 1 || d.store.turns[0].Role != contractx.RoleUser {
		t.Fatalf("aborted turn must still persist the user message: %+v", d.store.turns)
	}
}

func TestHandleTurnDegradesOnStoreAndReconcilerFailure(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.store.turnsErr = errors.New("db down")
	d.reconciler.err = fmt.Errorf("%w: db down", contractx.ErrTransient)
	d.planner.plans = []contractx.PlanningResult{
		{Write: &contractx.WriteIntent{Key: "name", Value: "Petr"}, NeedsCompletion: true},
	}
	p := newPipeline(t, d, Config{})

	reply, err := p.HandleTurn(context.Background(), request())
	if err != nil {
		t.Fatalf("degraded turn must still reply, got error %v", err)
	}
	if reply.Text == "" {
		t.Fatal("degraded turn must carry text")
	}
}

func TestHandleTurnCarriesSafetyFlags(t *testing.T) {
	t.Parallel()

	d := newDeps()
	d.safety.flags = []string{"blocked-term:rm -rf"}
	p := newPipeline(t, d, Config{})

	reply, err := p.HandleTurn(context.Background(), request())
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if len(reply.SafetyFlags) != 1 || reply.SafetyFlags[0] != "blocked-term:rm -rf" {
		t.Fatalf("unexpected safety flags: %v", reply.SafetyFlags)
	}
}

func TestCollectCitationsDedupesInOrder(t *testing.T) {
	t.Parallel()

	citations := collectCitations([]contractx.ToolOutcome{
		{Citations: []string{"a", "b"}},
		{Citations: []string{"b", "c", ""}},
	})
	want := []string{"a", "b", "c"}
	if len(citations) != len(want) {
		t.Fatalf("unexpected citations: %v", citations)
	}
	for i := range want {
		if citations[i] != want[i] {
			t.Fatalf("unexpected citations: %v", citations)
		}
	}
}

type scriptedInvoker struct {
	planOutput string
}

func (s *scriptedInvoker) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.Contains(systemPrompt, "planner") {
		return s.planOutput, nil
	}
	return "done", nil
}

// End-to-end through the real planner, executor and store: a nomination for a
// tool the registry does not know must still leave exactly one failed
// ToolCallRecord with a configuration-error outcome.
func TestUnregisteredNominationLeavesFailedRecord(t *testing.T) {
	t.Parallel()

	store := memoryx.NewInMemoryStore()
	catalog, err := toolx.DefaultCatalog(toolx.SearchConfig{}, toolx.NowPlayingConfig{})
	if err != nil {
		t.Fatalf("DefaultCatalog() error = %v", err)
	}
	invoker := &scriptedInvoker{
		planOutput: `{"tool_calls": [{"tool": "format_disk", "args": {}}], "memory": {"store": false}, "rationale": ""}`,
	}

	p, err := New(
		assemblerx.New(store, 0, 0),
		plannerx.New(invoker, catalog, store, "planner prompt"),
		executorx.New(catalog, store, time.Second),
		reconcilerx.New(store),
		invoker,
		store,
		safetyx.NewPolicy(),
		prompts(),
		Config{MaxReplans: 0},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reply, err := p.HandleTurn(context.Background(), request())
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if reply.Text != "done" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	records, err := store.ListToolCalls(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListToolCalls() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record for 1 nomination, got %d", len(records))
	}
	rec := records[0]
	if rec.Success || rec.ToolName != "format_disk" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !strings.Contains(rec.Error, "not registered") {
		t.Fatalf("record must carry the configuration error: %+v", rec)
	}

	decisions, err := store.ListPlannerDecisions(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("ListPlannerDecisions() error = %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected exactly 1 decision, got %d", len(decisions))
	}
}
