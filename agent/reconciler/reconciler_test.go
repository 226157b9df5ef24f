package reconciler

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/wrenhq/wren/agent/contract"
)

type fakeStore struct {
	upserts []contractx.MemoryFact
	err     error
}

func (f *fakeStore) Facts(ctx context.Context, userID string) ([]contractx.MemoryFact, error) {
	return nil, nil
}
func (f *fakeStore) Summary(ctx context.Context, userID, guildID, channelID string) (*contractx.ConversationSummary, error) {
	return nil, nil
}
func (f *fakeStore) RecentTurns(ctx context.Context, guildID, channelID string, limit int) ([]contractx.ConversationTurn, error) {
	return nil, nil
}
func (f *fakeStore) UpsertFact(ctx context.Context, fact contractx.MemoryFact) error {
	f.upserts = append(f.upserts, fact)
	return f.err
}
func (f *fakeStore) AppendTurn(ctx context.Context, turn contractx.ConversationTurn) error {
	return nil
}
func (f *fakeStore) PutSummary(ctx context.Context, summary contractx.ConversationSummary) error {
	return nil
}

func TestReconcileWritesFact(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	intent := &contractx.WriteIntent{Key: "name", Value: "Petr", Confidence: 0.9, Source: "user_message"}

	if err := New(store).Reconcile(context.Background(), "u1", intent); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}

	fact := store.upserts[0]
	if fact.UserID != "u1" || fact.Key != "name" || fact.Value != "Petr" {
		t.Fatalf("unexpected fact: %+v", fact)
	}
	if fact.UpdatedAt.IsZero() {
		t.Fatal("updated_at must be set")
	}
}

func TestReconcileNilIntentIsNoOp(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	if err := New(store).Reconcile(context.Background(), "u1", nil); err != nil {
		t.Fatalf("Reconcile(nil) error = %v", err)
	}
	if len(store.upserts) != 0 {
		t.Fatalf("nil intent must not write: %+v", store.upserts)
	}
}

func TestReconcileStoreFailureIsTransient(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("connection refused")}
	err := New(store).Reconcile(context.Background(), "u1", &contractx.WriteIntent{Key: "name", Value: "Petr"})
	if !errors.Is(err, contractx.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}
