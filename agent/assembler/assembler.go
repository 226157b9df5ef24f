package assembler

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
)

const (
	DefaultTurnWindow = 12
	DefaultFactLimit  = 32
)

// Assembler builds the per-turn memory context. It only reads; a failing
// store degrades the affected field to empty instead of failing the turn.
type Assembler struct {
	store      contractx.MemoryStore
	turnWindow int
	factLimit  int
}

func New(store contractx.MemoryStore, turnWindow, factLimit int) *Assembler {
	if turnWindow <= 0 {
		turnWindow = DefaultTurnWindow
	}
	if factLimit <= 0 {
		factLimit = DefaultFactLimit
	}
	return &Assembler{store: store, turnWindow: turnWindow, factLimit: factLimit}
}

func (a *Assembler) Assemble(ctx context.Context, userID, guildID, channelID string) contractx.MemoryContext {
	var memory contractx.MemoryContext

	turns, err := a.store.RecentTurns(ctx, guildID, channelID, a.turnWindow)
	if err != nil {
		log.Warn().Err(err).
			Str("guild_id", guildID).
			Str("channel_id", channelID).
			Msg("recent turns unavailable, continuing without them")
	} else {
		memory.RecentTurns = turns
	}

	facts, err := a.store.Facts(ctx, userID)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", userID).
			Msg("facts unavailable, continuing without them")
	} else {
		if len(facts) > a.factLimit {
			facts = facts[:a.factLimit]
		}
		memory.Facts = facts
	}

	summary, err := a.store.Summary(ctx, userID, guildID, channelID)
	if err != nil {
		log.Warn().Err(err).
			Str("user_id", userID).
			Str("channel_id", channelID).
			Msg("summary unavailable, continuing without it")
	} else if summary != nil {
		memory.Summary = summary.SummaryText
	}

	return memory
}
