package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/LetterDesk/internal/models"
)

func transientDoc(text string) models.Document {
	return models.Document{
		ID:            models.NewTransientID(),
		DocumentType:  models.DocLeaveLetter,
		GeneratedText: text,
		InputData:     map[string]string{"name": "A"},
		CreatedAt:     time.Now(),
	}
}

func TestFingerprintIsCanonical(t *testing.T) {
	a := Fingerprint(map[string]string{"b": "2", "a": "1"})
	b := Fingerprint(map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.Equal(t, `{"a":"1","b":"2"}`, a)
	assert.NotEqual(t, a, Fingerprint(map[string]string{"a": "1", "b": "2 "}))
	assert.Equal(t, "{}", Fingerprint(nil))
}

func TestGuardTransitions(t *testing.T) {
	g := Guard{Mode: GuardArmed}
	fp := Fingerprint(map[string]string{"name": "A"})
	assert.False(t, g.Rejects(fp))

	g = g.Record(fp)
	assert.Equal(t, GuardGuarded, g.Mode)
	assert.True(t, g.Rejects(fp))
	assert.False(t, g.Rejects(Fingerprint(map[string]string{"name": "B"})))

	g = g.Arm()
	assert.False(t, g.Rejects(fp))
}

func TestSelectTemplateRearmsGuardAndClearsResult(t *testing.T) {
	fp := Fingerprint(map[string]string{"name": "A"})
	st := New().SelectTemplate("leave").BeginGeneration(time.Now()).CompleteGeneration(transientDoc("T"), fp)
	require.NotNil(t, st.Active)
	require.True(t, st.Guard.Rejects(fp))
	epoch := st.Epoch

	st = st.SelectTemplate("bank")
	assert.Nil(t, st.Active)
	assert.False(t, st.Guard.Rejects(fp))
	assert.Equal(t, "bank", st.Template)
	assert.Greater(t, st.Epoch, epoch)
}

func TestClearResultRearmsGuard(t *testing.T) {
	fp := Fingerprint(map[string]string{"name": "A"})
	st := New().CompleteGeneration(transientDoc("T"), fp).ClearResult()
	assert.Nil(t, st.Active)
	assert.Equal(t, GuardArmed, st.Guard.Mode)
}

func TestTransitionsDoNotAliasHistory(t *testing.T) {
	base := New().PrependHistory(models.Document{ID: "a"})
	next := base.PrependHistory(models.Document{ID: "b"})
	require.Len(t, base.History, 1)
	require.Len(t, next.History, 2)
	assert.Equal(t, "b", next.History[0].ID)

	again := next.PrependHistory(models.Document{ID: "a", GeneratedText: "new"})
	require.Len(t, again.History, 2)
	assert.Equal(t, "new", again.History[0].GeneratedText)
}

func TestClaimOnlyOncePerDocument(t *testing.T) {
	doc := transientDoc("T")
	st := New().CompleteGeneration(doc, "fp")
	require.True(t, st.CanClaim())

	st, claimed, ok := st.BeginClaim()
	require.True(t, ok)
	assert.Equal(t, doc.ID, claimed.ID)

	_, _, ok = st.BeginClaim()
	assert.False(t, ok, "pending claim must not start again")

	saved := claimed
	saved.ID = "5f0c7c2e-1d51-4d43-9d5b-0a7d2f3e9b11"
	saved.OwnerID = "user-1"
	st = st.CompleteClaim(doc.ID, saved)
	assert.Equal(t, saved.ID, st.Active.ID)
	assert.Equal(t, saved.ID, st.History[0].ID)
	assert.False(t, st.CanClaim())

	st.Claim = StatusIdle
	assert.False(t, st.CanClaim(), "permanent ids are never claimable")
}

func TestGenerationPendingOwnership(t *testing.T) {
	now := time.Now()
	first := now.Add(-time.Hour)

	st := New().BeginGeneration(first)
	assert.True(t, st.OwnsGeneration(first))
	assert.False(t, st.GenerationBusy(now, time.Minute), "an abandoned generation stops blocking")
	assert.True(t, st.GenerationBusy(first.Add(time.Second), time.Minute))

	st = st.BeginGeneration(now)
	assert.False(t, st.OwnsGeneration(first))
	assert.True(t, st.OwnsGeneration(now))
	assert.True(t, st.GenerationBusy(now, time.Minute))

	next, _ := st.ApplyIdentity(&Identity{UserID: "u1"})
	next, _ = next.ApplyIdentity(nil)
	assert.True(t, next.OwnsGeneration(now), "reset keeps the in-flight generation")

	done := st.FailGeneration("boom")
	assert.False(t, done.OwnsGeneration(now))
	assert.False(t, done.GenerationBusy(now, time.Minute))
	assert.True(t, done.PendingSince.IsZero())
	assert.True(t, st.SettleGeneration().PendingSince.IsZero())
	assert.True(t, st.CompleteGeneration(transientDoc("T"), "fp").PendingSince.IsZero())
}

func TestResetDropsArtifacts(t *testing.T) {
	st := New().
		WithIdentity(&Identity{UserID: "u1", Email: "a@b.c"}).
		WithProfile(&models.Profile{ID: "u1", CreditsRemaining: 2}).
		PrependHistory(models.Document{ID: "d1"}).
		SelectTemplate("leave").
		CompleteGeneration(transientDoc("T"), "fp")

	next, eff := st.ApplyIdentity(nil)
	assert.True(t, eff.Reset)
	assert.Nil(t, next.Identity)
	assert.Nil(t, next.Profile)
	assert.Empty(t, next.History)
	assert.Nil(t, next.Active)
	assert.Empty(t, next.Template)
	assert.Equal(t, GuardArmed, next.Guard.Mode)
	assert.Greater(t, next.Epoch, st.Epoch)
}

func TestReduce(t *testing.T) {
	alice := &Identity{UserID: "alice"}
	bob := &Identity{UserID: "bob"}
	withDraft := New().CompleteGeneration(transientDoc("T"), "fp")

	tests := []struct {
		name string
		prev *Identity
		next *Identity
		st   State
		want Effects
	}{
		{name: "guest stays guest", want: Effects{}},
		{name: "sign in without draft", next: alice, st: New(), want: Effects{Load: true}},
		{name: "sign in with draft", next: alice, st: withDraft, want: Effects{Load: true, Claim: true}},
		{name: "token refresh", prev: alice, next: alice, st: withDraft, want: Effects{}},
		{name: "user switch", prev: alice, next: bob, st: withDraft, want: Effects{Reset: true, Load: true}},
		{name: "sign out", prev: alice, want: Effects{Reset: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reduce(tt.prev, tt.next, tt.st))
		})
	}
}

func TestManagerSavesRejectedState(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := m.Update(ctx, "c1", func(st *State) error {
		*st = st.Reject("nope")
		return boom
	})
	require.ErrorIs(t, err, boom)

	st, err := m.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "nope", st.Error)
}

func TestManagerSerializesPerClient(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, "c1", func(st *State) error {
				st.Epoch++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := m.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), st.Epoch)
	assert.Empty(t, m.locks)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	st := New().PrependHistory(models.Document{ID: "a"})
	require.NoError(t, store.Save(ctx, "c1", st))

	loaded, ok, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	loaded.History[0].ID = "mutated"

	again, _, _ := store.Load(ctx, "c1")
	assert.Equal(t, "a", again.History[0].ID)

	require.NoError(t, store.Delete(ctx, "c1"))
	_, ok, _ = store.Load(ctx, "c1")
	assert.False(t, ok)
}
