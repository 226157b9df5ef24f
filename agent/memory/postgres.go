package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/wrenhq/wren/agent/contract"
)

type factRow struct {
	bun.BaseModel `bun:"table:memory_facts"`

	UserID     string    `bun:"user_id,pk"`
	Key        string    `bun:"key,pk"`
	Value      string    `bun:"value,notnull"`
	Confidence float64   `bun:"confidence,notnull"`
	Source     string    `bun:"source,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type turnRow struct {
	bun.BaseModel `bun:"table:conversation_turns"`

	ID        int64     `bun:"id,pk,autoincrement"`
	UserID    string    `bun:"user_id,notnull"`
	GuildID   string    `bun:"guild_id,notnull"`
	ChannelID string    `bun:"channel_id,notnull"`
	Role      string    `bun:"role,notnull"`
	Content   string    `bun:"content,notnull"`
	Timestamp time.Time `bun:"timestamp,notnull"`
}

type summaryRow struct {
	bun.BaseModel `bun:"table:conversation_summaries"`

	UserID      string    `bun:"user_id,pk"`
	GuildID     string    `bun:"guild_id,pk"`
	ChannelID   string    `bun:"channel_id,pk"`
	SummaryText string    `bun:"summary_text,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

type toolCallRow struct {
	bun.BaseModel `bun:"table:tool_call_records"`

	ID         int64     `bun:"id,pk,autoincrement"`
	UserID     string    `bun:"user_id,notnull"`
	GuildID    string    `bun:"guild_id,notnull"`
	ChannelID  string    `bun:"channel_id,notnull"`
	ToolName   string    `bun:"tool_name,notnull"`
	Source     string    `bun:"source,notnull"`
	ArgsJSON   string    `bun:"args_json,notnull"`
	ResultText string    `bun:"result_text,notnull"`
	Citations  []string  `bun:"citations,array"`
	Success    bool      `bun:"success,notnull"`
	Error      string    `bun:"error"`
	Timestamp  time.Time `bun:"timestamp,notnull"`
}

type plannerDecisionRow struct {
	bun.BaseModel `bun:"table:planner_decisions"`

	ID          int64     `bun:"id,pk,autoincrement"`
	UserID      string    `bun:"user_id,notnull"`
	GuildID     string    `bun:"guild_id,notnull"`
	ChannelID   string    `bun:"channel_id,notnull"`
	Decision    string    `bun:"decision,notnull"`
	Rationale   string    `bun:"rationale"`
	PayloadJSON string    `bun:"payload_json,notnull"`
	Success     bool      `bun:"success,notnull"`
	Error       string    `bun:"error"`
	Timestamp   time.Time `bun:"timestamp,notnull"`
}

// PostgresStore persists conversation state and audit rows in Postgres.
// It satisfies both contract.MemoryStore and contract.AuditSink.
type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database dsn is empty", contractx.ErrConfiguration)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &PostgresStore{db: db}, nil
}

// Init creates the schema when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	models := []any{
		(*factRow)(nil),
		(*turnRow)(nil),
		(*summaryRow)(nil),
		(*toolCallRow)(nil),
		(*plannerDecisionRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("%w: create table: %v", contractx.ErrTransient, err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Facts(ctx context.Context, userID string) ([]contractx.MemoryFact, error) {
	var rows []factRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: select facts: %v", contractx.ErrTransient, err)
	}

	facts := make([]contractx.MemoryFact, 0, len(rows))
	for _, row := range rows {
		facts = append(facts, contractx.MemoryFact{
			UserID:     row.UserID,
			Key:        row.Key,
			Value:      row.Value,
			Confidence: row.Confidence,
			Source:     row.Source,
			UpdatedAt:  row.UpdatedAt,
		})
	}
	return facts, nil
}

func (s *PostgresStore) Summary(ctx context.Context, userID, guildID, channelID string) (*contractx.ConversationSummary, error) {
	var row summaryRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Where("guild_id = ?", guildID).
		Where("channel_id = ?", channelID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select summary: %v", contractx.ErrTransient, err)
	}

	return &contractx.ConversationSummary{
		UserID:      row.UserID,
		GuildID:     row.GuildID,
		ChannelID:   row.ChannelID,
		SummaryText: row.SummaryText,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// RecentTurns returns up to limit turns for the channel, oldest first.
func (s *PostgresStore) RecentTurns(ctx context.Context, guildID, channelID string, limit int) ([]contractx.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []turnRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("guild_id = ?", guildID).
		Where("channel_id = ?", channelID).
		Order("timestamp DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: select turns: %v", contractx.ErrTransient, err)
	}

	turns := make([]contractx.ConversationTurn, len(rows))
	for i, row := range rows {
		turns[len(rows)-1-i] = contractx.ConversationTurn{
			UserID:    row.UserID,
			GuildID:   row.GuildID,
			ChannelID: row.ChannelID,
			Role:      contractx.ChatRole(row.Role),
			Content:   row.Content,
			Timestamp: row.Timestamp,
		}
	}
	return turns, nil
}

func (s *PostgresStore) UpsertFact(ctx context.Context, fact contractx.MemoryFact) error {
	row := factRow{
		UserID:     fact.UserID,
		Key:        fact.Key,
		Value:      fact.Value,
		Confidence: fact.Confidence,
		Source:     fact.Source,
		UpdatedAt:  fact.UpdatedAt,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (user_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("confidence = EXCLUDED.confidence").
		Set("source = EXCLUDED.source").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert fact: %v", contractx.ErrTransient, err)
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn contractx.ConversationTurn) error {
	row := turnRow{
		UserID:    turn.UserID,
		GuildID:   turn.GuildID,
		ChannelID: turn.ChannelID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		Timestamp: turn.Timestamp,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: append turn: %v", contractx.ErrTransient, err)
	}
	return nil
}

func (s *PostgresStore) PutSummary(ctx context.Context, summary contractx.ConversationSummary) error {
	row := summaryRow{
		UserID:      summary.UserID,
		GuildID:     summary.GuildID,
		ChannelID:   summary.ChannelID,
		SummaryText: summary.SummaryText,
		UpdatedAt:   summary.UpdatedAt,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (user_id, guild_id, channel_id) DO UPDATE").
		Set("summary_text = EXCLUDED.summary_text").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: put summary: %v", contractx.ErrTransient, err)
	}
	return nil
}

func (s *PostgresStore) RecordToolCall(ctx context.Context, rec contractx.ToolCallRecord) error {
	row := toolCallRow{
		UserID:     rec.UserID,
		GuildID:    rec.GuildID,
		ChannelID:  rec.ChannelID,
		ToolName:   rec.ToolName,
		Source:     rec.Source,
		ArgsJSON:   rec.ArgsJSON,
		ResultText: rec.ResultText,
		Citations:  rec.Citations,
		Success:    rec.Success,
		Error:      rec.Error,
		Timestamp:  rec.Timestamp,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: record tool call: %v", contractx.ErrTransient, err)
	}
	return nil
}

func (s *PostgresStore) RecordPlannerDecision(ctx context.Context, dec contractx.PlannerDecision) error {
	row := plannerDecisionRow{
		UserID:      dec.UserID,
		GuildID:     dec.GuildID,
		ChannelID:   dec.ChannelID,
		Decision:    dec.Decision,
		Rationale:   dec.Rationale,
		PayloadJSON: dec.PayloadJSON,
		Success:     dec.Success,
		Error:       dec.Error,
		Timestamp:   dec.Timestamp,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("%w: record planner decision: %v", contractx.ErrTransient, err)
	}
	return nil
}

func (s *PostgresStore) ListToolCalls(ctx context.Context, userID string, limit int) ([]contractx.ToolCallRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []toolCallRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("timestamp DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list tool calls: %v", contractx.ErrTransient, err)
	}

	records := make([]contractx.ToolCallRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, contractx.ToolCallRecord{
			UserID:     row.UserID,
			GuildID:    row.GuildID,
			ChannelID:  row.ChannelID,
			ToolName:   row.ToolName,
			Source:     row.Source,
			ArgsJSON:   row.ArgsJSON,
			ResultText: row.ResultText,
			Citations:  row.Citations,
			Success:    row.Success,
			Error:      row.Error,
			Timestamp:  row.Timestamp,
		})
	}
	return records, nil
}

func (s *PostgresStore) ListPlannerDecisions(ctx context.Context, userID string, limit int) ([]contractx.PlannerDecision, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []plannerDecisionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("timestamp DESC", "id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list planner decisions: %v", contractx.ErrTransient, err)
	}

	decisions := make([]contractx.PlannerDecision, 0, len(rows))
	for _, row := range rows {
		decisions = append(decisions, contractx.PlannerDecision{
			UserID:      row.UserID,
			GuildID:     row.GuildID,
			ChannelID:   row.ChannelID,
			Decision:    row.Decision,
			Rationale:   row.Rationale,
			PayloadJSON: row.PayloadJSON,
			Success:     row.Success,
			Error:       row.Error,
			Timestamp:   row.Timestamp,
		})
	}
	return decisions, nil
}
