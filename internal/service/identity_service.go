package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/digkill/LetterDesk/internal/auth"
	"github.com/digkill/LetterDesk/internal/models"
	"github.com/digkill/LetterDesk/internal/session"
)

// IdentityService keeps each workspace in step with who is signed in. It
// listens to the authenticator's events and turns them into state
// transitions plus the claim and reload they call for.
type IdentityService struct {
	log       *slog.Logger
	sessions  *session.Manager
	auth      Authenticator
	claims    *ClaimService
	profiles  ProfileStore
	documents DocumentStore
	plans     *PlanService
}

func NewIdentityService(log *slog.Logger, sessions *session.Manager, authenticator Authenticator, claims *ClaimService, profiles ProfileStore, documents DocumentStore, plans *PlanService) *IdentityService {
	return &IdentityService{
		log:       log,
		sessions:  sessions,
		auth:      authenticator,
		claims:    claims,
		profiles:  profiles,
		documents: documents,
		plans:     plans,
	}
}

// Start subscribes to identity events. The returned function unsubscribes.
func (s *IdentityService) Start() func() {
	return s.auth.Subscribe(s.HandleAuthEvent)
}

// HandleAuthEvent applies an identity change to the event's workspace.
func (s *IdentityService) HandleAuthEvent(ctx context.Context, ev auth.Event) {
	var next *session.Identity
	if ev.Session != nil {
		next = &session.Identity{UserID: ev.Session.UserID, Email: ev.Session.Email}
	}

	var eff session.Effects
	if _, err := s.sessions.Update(ctx, ev.ClientID, func(st *session.State) error {
		*st, eff = st.ApplyIdentity(next)
		return nil
	}); err != nil {
		s.log.Error("apply identity", "err", err, "client_id", ev.ClientID, "event", ev.Kind)
		return
	}

	// The account is loaded before the claim so the workspace shows the
	// balance as it was, then the one the claim leaves.
	if eff.Load {
		if err := s.load(ctx, ev.ClientID, next.UserID); err != nil {
			s.log.Error("load account", "err", err, "client_id", ev.ClientID, "user_id", next.UserID)
		}
	}
	if eff.Claim {
		if _, err := s.claims.Claim(ctx, ev.ClientID, next.UserID); err != nil && !errors.Is(err, ErrNothingToClaim) {
			s.log.Error("claim on sign-in", "err", err, "client_id", ev.ClientID, "user_id", next.UserID)
		}
	}
}

// load fetches the profile and history fresh. The result is dropped if the
// workspace has switched to another identity meanwhile.
func (s *IdentityService) load(ctx context.Context, clientID, userID string) error {
	var (
		profile *models.Profile
		history []models.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.profiles.FindByID(gctx, userID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		docs, err := s.documents.ListByOwner(gctx, userID)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		history = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	_, err := s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if st.Identity == nil || st.Identity.UserID != userID {
			return nil
		}
		*st = st.WithProfile(profile).WithHistory(history)
		if a := st.Active; a != nil && !a.IsTransient() && a.OwnerID == userID && !containsDocument(st.History, a.ID) {
			*st = st.PrependHistory(*a)
		}
		return nil
	})
	return err
}

func containsDocument(docs []models.Document, id string) bool {
	for _, d := range docs {
		if d.ID == id {
			return true
		}
	}
	return false
}

// Init opens a workspace, creating a client id when none is given, and
// restores the identity the token stands for.
func (s *IdentityService) Init(ctx context.Context, clientID, token string) (string, session.State, error) {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	s.auth.Restore(ctx, clientID, token)
	st, err := s.sessions.Get(ctx, clientID)
	if err != nil {
		return "", session.State{}, err
	}
	return clientID, st, nil
}

func (s *IdentityService) SignIn(ctx context.Context, clientID, email, password string) (*auth.Session, session.State, error) {
	if st, err := s.beginAuth(ctx, clientID); err != nil {
		return nil, st, err
	}
	sess, err := s.auth.SignIn(ctx, clientID, email, password)
	st, err := s.finishAuth(ctx, clientID, err)
	if err != nil {
		return nil, st, err
	}
	return sess, st, nil
}

// SignUp registers the account on the default plan. The user signs in
// separately.
func (s *IdentityService) SignUp(ctx context.Context, clientID, email, password string) (session.State, error) {
	if st, err := s.beginAuth(ctx, clientID); err != nil {
		return st, err
	}
	plan, err := s.plans.EnsureDefaultPlan(ctx)
	if err == nil {
		err = s.auth.SignUp(ctx, email, password, plan.Code, plan.Credits)
	}
	return s.finishAuth(ctx, clientID, err)
}

func (s *IdentityService) SignOut(ctx context.Context, clientID string) (session.State, error) {
	if st, err := s.beginAuth(ctx, clientID); err != nil {
		return st, err
	}
	return s.finishAuth(ctx, clientID, s.auth.SignOut(ctx, clientID))
}

func (s *IdentityService) Refresh(ctx context.Context, clientID, refreshToken string) (*auth.Session, session.State, error) {
	sess, err := s.auth.Refresh(ctx, clientID, refreshToken)
	if err != nil {
		st, getErr := s.sessions.Get(ctx, clientID)
		if getErr != nil {
			return nil, session.State{}, getErr
		}
		return nil, st, &AuthError{Cause: err}
	}
	st, err := s.sessions.Get(ctx, clientID)
	if err != nil {
		return nil, session.State{}, err
	}
	return sess, st, nil
}

func (s *IdentityService) beginAuth(ctx context.Context, clientID string) (session.State, error) {
	return s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if st.Auth == session.StatusPending {
			return ErrBusy
		}
		*st = st.WithAuthStatus(session.StatusPending, "")
		return nil
	})
}

func (s *IdentityService) finishAuth(ctx context.Context, clientID string, cause error) (session.State, error) {
	var result error
	st, err := s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if cause != nil {
			result = &AuthError{Cause: cause}
			*st = st.WithAuthStatus(session.StatusFailed, cause.Error())
			return nil
		}
		*st = st.WithAuthStatus(session.StatusSucceeded, "")
		return nil
	})
	if err != nil {
		return st, err
	}
	return st, result
}
