package contract

import (
	"time"
)

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// TurnRequest is one inbound chat message as delivered by a channel adapter.
type TurnRequest struct {
	MessageID  string    `json:"message_id"`
	UserID     string    `json:"user_id"`
	GuildID    string    `json:"guild_id"`
	ChannelID  string    `json:"channel_id"`
	Content    string    `json:"content"`
	ReceivedAt time.Time `json:"received_at"`
}

// TurnReply is the final outcome of a processed turn.
type TurnReply struct {
	Text        string     `json:"text"`
	Citations   []string   `json:"citations,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	SafetyFlags []string   `json:"safety_flags,omitempty"`
	Slow        bool       `json:"slow,omitempty"`
}

// ConversationTurn is one recorded message, append-only per (guild, channel).
type ConversationTurn struct {
	UserID    string    `json:"user_id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MemoryFact is a durable user-scoped key/value item. (UserID, Key) is unique;
// a write to an existing key overwrites value, confidence and source entirely.
type MemoryFact struct {
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	Source     string    `json:"source"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ConversationSummary is replaced wholesale, one row per (user, guild, channel).
type ConversationSummary struct {
	UserID      string    `json:"user_id"`
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	SummaryText string    `json:"summary_text"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MemoryContext is the per-turn assembled context. All fields may be empty;
// a short-term-only context is valid.
type MemoryContext struct {
	Summary     string             `json:"summary,omitempty"`
	RecentTurns []ConversationTurn `json:"recent_turns,omitempty"`
	Facts       []MemoryFact       `json:"facts,omitempty"`
}

// ToolCall is one planner-selected invocation request.
type ToolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolOutcome is the normalized result of one tool invocation.
type ToolOutcome struct {
	Tool      string   `json:"tool"`
	Text      string   `json:"text,omitempty"`
	Citations []string `json:"citations,omitempty"`
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
}

// WriteIntent is a planner-declared memory write.
type WriteIntent struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// PlanningResult is the planner's ordered decision for one turn.
type PlanningResult struct {
	ToolCalls       []ToolCall   `json:"tool_calls,omitempty"`
	Write           *WriteIntent `json:"write,omitempty"`
	NeedsCompletion bool         `json:"needs_completion"`
	Rationale       string       `json:"rationale,omitempty"`
	Fallback        bool         `json:"fallback,omitempty"`
}

// ToolCallRecord is the append-only audit row written once per invocation.
type ToolCallRecord struct {
	UserID     string    `json:"user_id"`
	GuildID    string    `json:"guild_id"`
	ChannelID  string    `json:"channel_id"`
	ToolName   string    `json:"tool_name"`
	Source     string    `json:"source"`
	ArgsJSON   string    `json:"args_json"`
	ResultText string    `json:"result_text"`
	Citations  []string  `json:"citations,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// PlannerDecision is the append-only audit row written once per planning attempt.
type PlannerDecision struct {
	UserID      string    `json:"user_id"`
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	Decision    string    `json:"decision"`
	Rationale   string    `json:"rationale"`
	PayloadJSON string    `json:"payload_json"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
