package contract

import "context"

// ModelInvoker abstracts a language-model backend behind one completion call.
type ModelInvoker interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// MemoryStore is the narrow read/write contract against the persistence
// collaborator. Implementations must be safe for concurrent use.
type MemoryStore interface {
	Facts(ctx context.Context, userID string) ([]MemoryFact, error)
	Summary(ctx context.Context, userID, guildID, channelID string) (*ConversationSummary, error)
	RecentTurns(ctx context.Context, guildID, channelID string, limit int) ([]ConversationTurn, error)

	UpsertFact(ctx context.Context, fact MemoryFact) error
	AppendTurn(ctx context.Context, turn ConversationTurn) error
	PutSummary(ctx context.Context, summary ConversationSummary) error
}

// AuditSink receives append-only records; writes are pure write-through with
// no in-process buffering. List operations serve the external reporting surface.
type AuditSink interface {
	RecordToolCall(ctx context.Context, rec ToolCallRecord) error
	RecordPlannerDecision(ctx context.Context, dec PlannerDecision) error
	ListToolCalls(ctx context.Context, userID string, limit int) ([]ToolCallRecord, error)
	ListPlannerDecisions(ctx context.Context, userID string, limit int) ([]PlannerDecision, error)
}

// Tool is one registered capability. Invoke must return ErrConfiguration
// (wrapped) when a required credential is absent, never panic.
type Tool interface {
	Name() string
	Invoke(ctx context.Context, args map[string]any) (ToolOutcome, error)
}
