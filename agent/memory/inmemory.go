package memory

import (
	"context"
	"sort"
	"sync"

	contractx "github.com/wrenhq/wren/agent/contract"
)

type channelKey struct {
	guildID   string
	channelID string
}

type summaryKey struct {
	userID    string
	guildID   string
	channelID string
}

// InMemoryStore keeps everything in process. It backs local runs and tests
// when no database url is configured, and satisfies the same contracts as
// PostgresStore.
type InMemoryStore struct {
	mu sync.RWMutex

	facts     map[string][]contractx.MemoryFact
	turns     map[channelKey][]contractx.ConversationTurn
	summaries map[summaryKey]contractx.ConversationSummary
	toolCalls []contractx.ToolCallRecord
	decisions []contractx.PlannerDecision
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		facts:     make(map[string][]contractx.MemoryFact),
		turns:     make(map[channelKey][]contractx.ConversationTurn),
		summaries: make(map[summaryKey]contractx.ConversationSummary),
	}
}

// Facts returns the user's facts, most recently updated first.
func (s *InMemoryStore) Facts(ctx context.Context, userID string) ([]contractx.MemoryFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	facts := make([]contractx.MemoryFact, len(s.facts[userID]))
	copy(facts, s.facts[userID])
	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].UpdatedAt.After(facts[j].UpdatedAt)
	})
	return facts, nil
}

func (s *InMemoryStore) Summary(ctx context.Context, userID, guildID, channelID string) (*contractx.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[summaryKey{userID, guildID, channelID}]
	if !ok {
		return nil, nil
	}
	return &summary, nil
}

// RecentTurns returns up to limit turns for the channel, oldest first.
func (s *InMemoryStore) RecentTurns(ctx context.Context, guildID, channelID string, limit int) ([]contractx.ConversationTurn, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.turns[channelKey{guildID, channelID}]
	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	turns := make([]contractx.ConversationTurn, len(all)-start)
	copy(turns, all[start:])
	return turns, nil
}

func (s *InMemoryStore) UpsertFact(ctx context.Context, fact contractx.MemoryFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.facts[fact.UserID]
	for i := range existing {
		if existing[i].Key == fact.Key {
			existing[i] = fact
			return nil
		}
	}
	s.facts[fact.UserID] = append(existing, fact)
	return nil
}

func (s *InMemoryStore) AppendTurn(ctx context.Context, turn contractx.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := channelKey{turn.GuildID, turn.ChannelID}
	s.turns[key] = append(s.turns[key], turn)
	return nil
}

func (s *InMemoryStore) PutSummary(ctx context.Context, summary contractx.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[summaryKey{summary.UserID, summary.GuildID, summary.ChannelID}] = summary
	return nil
}

func (s *InMemoryStore) RecordToolCall(ctx context.Context, rec contractx.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.toolCalls = append(s.toolCalls, rec)
	return nil
}

func (s *InMemoryStore) RecordPlannerDecision(ctx context.Context, dec contractx.PlannerDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = append(s.decisions, dec)
	return nil
}

// ListToolCalls returns the user's records, newest first.
func (s *InMemoryStore) ListToolCalls(ctx context.Context, userID string, limit int) ([]contractx.ToolCallRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]contractx.ToolCallRecord, 0, limit)
	for i := len(s.toolCalls) - 1; i >= 0 && len(records) < limit; i-- {
		if s.toolCalls[i].UserID == userID {
			records = append(records, s.toolCalls[i])
		}
	}
	return records, nil
}

// ListPlannerDecisions returns the user's decisions, newest first.
func (s *InMemoryStore) ListPlannerDecisions(ctx context.Context, userID string, limit int) ([]contractx.PlannerDecision, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	decisions := make([]contractx.PlannerDecision, 0, limit)
	for i := len(s.decisions) - 1; i >= 0 && len(decisions) < limit; i-- {
		if s.decisions[i].UserID == userID {
			decisions = append(decisions, s.decisions[i])
		}
	}
	return decisions, nil
}
