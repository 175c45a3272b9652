package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/digkill/LetterDesk/internal/models"
	"github.com/digkill/LetterDesk/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrInvalidEmail       = errors.New("unable to validate email address: invalid format")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
)

const minPasswordLength = 6

type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
)

type Session struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Event reports an identity change for one client. Session is nil when the
// client has no signed-in user.
type Event struct {
	ClientID string
	Kind     EventKind
	Session  *Session
}

type Listener func(ctx context.Context, ev Event)

type AccountStore interface {
	Create(ctx context.Context, email, passwordHash, plan string, credits int) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Service authenticates accounts and tells subscribers about identity
// changes. Listeners run synchronously in subscription order, so the caller
// of SignIn observes every effect of the event before it returns.
type Service struct {
	accounts AccountStore
	tokens   *TokenManager
	hasher   *PasswordHasher

	mu        sync.RWMutex
	listeners map[int]Listener
	order     []int
	nextID    int
}

func NewService(accounts AccountStore, tokens *TokenManager, hasher *PasswordHasher) *Service {
	return &Service{
		accounts:  accounts,
		tokens:    tokens,
		hasher:    hasher,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Service) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Service) emit(ctx context.Context, ev Event) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ctx, ev)
	}
}

// Resolve returns the session an access token stands for.
func (s *Service) Resolve(token string) (*Session, error) {
	claims, err := s.tokens.ValidateAccess(token)
	if err != nil {
		return nil, err
	}
	return &Session{
		UserID:      claims.UserID,
		Email:       claims.Email,
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Restore announces the session the client already holds. An empty or
// unusable token restores a guest.
func (s *Service) Restore(ctx context.Context, clientID, token string) *Session {
	var sess *Session
	if token != "" {
		if resolved, err := s.Resolve(token); err == nil {
			sess = resolved
		}
	}
	s.emit(ctx, Event{ClientID: clientID, Kind: EventInitialSession, Session: sess})
	return sess
}

// SignUp creates the account and its profile. It does not sign in.
func (s *Service) SignUp(ctx context.Context, email, password, plan string, credits int) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if existing != nil {
		return ErrUserExists
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.accounts.Create(ctx, email, hash, plan, credits); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return ErrUserExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Service) SignIn(ctx context.Context, clientID, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	if account == nil || !s.hasher.Verify(password, account.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	sess, err := s.issue(account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Event{ClientID: clientID, Kind: EventSignedIn, Session: sess})
	return sess, nil
}

// SignOut drops the client's identity. Tokens are stateless and simply
// expire.
func (s *Service) SignOut(ctx context.Context, clientID string) error {
	s.emit(ctx, Event{ClientID: clientID, Kind: EventSignedOut})
	return nil
}

func (s *Service) Refresh(ctx context.Context, clientID, refreshToken string) (*Session, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	sess, err := s.issue(claims.UserID, claims.Email)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, Event{ClientID: clientID, Kind: EventTokenRefreshed, Session: sess})
	return sess, nil
}

func (s *Service) issue(userID, email string) (*Session, error) {
	access, exp, err := s.tokens.IssueAccess(userID, email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.tokens.IssueRefresh(userID, email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &Session{
		UserID:       userID,
		Email:        email,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
