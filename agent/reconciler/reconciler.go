package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/wrenhq/wren/agent/contract"
)

// Reconciler applies the planner's write intent to durable memory. One write
// per turn at most; replaying the same intent is a no-op beyond the timestamp.
type Reconciler struct {
	store contractx.MemoryStore
	now   func() time.Time
}

func New(store contractx.MemoryStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Reconcile upserts the fact keyed by (userID, intent.Key), overwriting
// value, confidence and source wholesale. Facts are never deleted here.
func (r *Reconciler) Reconcile(ctx context.Context, userID string, intent *contractx.WriteIntent) error {
	if intent == nil {
		return nil
	}

	fact := contractx.MemoryFact{
		UserID:     userID,
		Key:        intent.Key,
		Value:      intent.Value,
		Confidence: intent.Confidence,
		Source:     intent.Source,
		UpdatedAt:  r.now().UTC(),
	}
	if err := r.store.UpsertFact(ctx, fact); err != nil {
		return fmt.Errorf("%w: reconcile fact %s: %v", contractx.ErrTransient, intent.Key, err)
	}

	log.Debug().
		Str("user_id", userID).
		Str("key", intent.Key).
		Float64("confidence", intent.Confidence).
		Msg("memory fact reconciled")
	return nil
}
