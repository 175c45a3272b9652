package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/LetterDesk/internal/models"
)

type memAccounts struct {
	mu       sync.Mutex
	byEmail  map[string]*models.Account
	profiles map[string]int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byEmail: map[string]*models.Account{}, profiles: map[string]int{}}
}

func (m *memAccounts) Create(_ context.Context, email, hash, plan string, credits int) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &models.Account{ID: uuid.NewString(), Email: email, PasswordHash: hash}
	m.byEmail[email] = a
	m.profiles[a.ID] = credits
	return a, nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byEmail[email], nil
}

func newTestService(t *testing.T) (*Service, *memAccounts) {
	t.Helper()
	accounts := newMemAccounts()
	tokens := NewTokenManager(TokenConfig{Secret: "test-secret", AccessTTL: time.Hour})
	return NewService(accounts, tokens, NewPasswordHasher(bcrypt.MinCost)), accounts
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager(TokenConfig{Secret: "s", AccessTTL: time.Minute})

	access, exp, err := m.IssueAccess("u1", "a@b.c")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	claims, err := m.ValidateAccess(access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "a@b.c", claims.Email)

	_, err = m.ValidateRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpired(t *testing.T) {
	m := NewTokenManager(TokenConfig{Secret: "s", AccessTTL: time.Minute})
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	access, _, err := m.IssueAccess("u1", "a@b.c")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateAccess(access)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenWrongSecret(t *testing.T) {
	a := NewTokenManager(TokenConfig{Secret: "one", AccessTTL: time.Minute})
	b := NewTokenManager(TokenConfig{Secret: "two", AccessTTL: time.Minute})
	token, _, err := a.IssueAccess("u1", "a@b.c")
	require.NoError(t, err)

	_, err = b.ValidateAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret123")
	require.NoError(t, err)
	assert.True(t, h.Verify("secret123", hash))
	assert.False(t, h.Verify("secret124", hash))
}

func TestSignUpValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SignUp(ctx, "not-an-email", "secret123", "free", 3), ErrInvalidEmail)
	assert.ErrorIs(t, svc.SignUp(ctx, "a@b.c", "123", "free", 3), ErrWeakPassword)
	require.NoError(t, svc.SignUp(ctx, " A@B.c ", "secret123", "free", 3))
	assert.ErrorIs(t, svc.SignUp(ctx, "a@b.c", "secret123", "free", 3), ErrUserExists)
}

func TestSignUpDoesNotSignIn(t *testing.T) {
	svc, accounts := newTestService(t)
	var events []Event
	svc.Subscribe(func(_ context.Context, ev Event) { events = append(events, ev) })

	require.NoError(t, svc.SignUp(context.Background(), "a@b.c", "secret123", "free", 3))
	assert.Empty(t, events)
	acc := accounts.byEmail["a@b.c"]
	require.NotNil(t, acc)
	assert.Equal(t, 3, accounts.profiles[acc.ID])
}

func TestSignInEmitsEventSynchronously(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.SignUp(ctx, "a@b.c", "secret123", "free", 3))

	var got []Event
	unsubscribe := svc.Subscribe(func(_ context.Context, ev Event) { got = append(got, ev) })

	_, err := svc.SignIn(ctx, "c1", "a@b.c", "wrong-pass")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, got)

	sess, err := svc.SignIn(ctx, "c1", "a@b.c", "secret123")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, EventSignedIn, got[0].Kind)
	assert.Equal(t, "c1", got[0].ClientID)
	assert.Equal(t, sess.UserID, got[0].Session.UserID)

	refreshed, err := svc.Refresh(ctx, "c1", sess.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, sess.UserID, refreshed.UserID)
	require.Len(t, got, 2)
	assert.Equal(t, EventTokenRefreshed, got[1].Kind)

	require.NoError(t, svc.SignOut(ctx, "c1"))
	require.Len(t, got, 3)
	assert.Equal(t, EventSignedOut, got[2].Kind)
	assert.Nil(t, got[2].Session)

	unsubscribe()
	unsubscribe()
	require.NoError(t, svc.SignOut(ctx, "c1"))
	assert.Len(t, got, 3)
}

func TestRestore(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.SignUp(ctx, "a@b.c", "secret123", "free", 3))
	sess, err := svc.SignIn(ctx, "c1", "a@b.c", "secret123")
	require.NoError(t, err)

	var got []Event
	svc.Subscribe(func(_ context.Context, ev Event) { got = append(got, ev) })

	restored := svc.Restore(ctx, "c2", sess.AccessToken)
	require.NotNil(t, restored)
	assert.Equal(t, sess.UserID, restored.UserID)

	assert.Nil(t, svc.Restore(ctx, "c3", "garbage"))
	assert.Nil(t, svc.Restore(ctx, "c4", ""))

	require.Len(t, got, 3)
	for _, ev := range got {
		assert.Equal(t, EventInitialSession, ev.Kind)
	}
	assert.NotNil(t, got[0].Session)
	assert.Nil(t, got[1].Session)
}

func TestListenersRunInSubscriptionOrder(t *testing.T) {
	svc, _ := newTestService(t)
	var order []string
	svc.Subscribe(func(context.Context, Event) { order = append(order, "first") })
	svc.Subscribe(func(context.Context, Event) { order = append(order, "second") })

	require.NoError(t, svc.SignOut(context.Background(), "c1"))
	assert.Equal(t, []string{"first", "second"}, order)
}
