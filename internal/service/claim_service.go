package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/LetterDesk/internal/models"
	"github.com/digkill/LetterDesk/internal/session"
)

// ClaimService moves a document drafted as a guest into the account of the
// user who signed in afterwards.
type ClaimService struct {
	log       *slog.Logger
	sessions  *session.Manager
	documents DocumentStore
	profiles  ProfileStore
	usage     UsageRecorder
}

func NewClaimService(log *slog.Logger, sessions *session.Manager, documents DocumentStore, profiles ProfileStore, usage UsageRecorder) *ClaimService {
	return &ClaimService{
		log:       log,
		sessions:  sessions,
		documents: documents,
		profiles:  profiles,
		usage:     usage,
	}
}

// Claim persists the client's active transient document for userID. It runs
// at most once per document: a claim in flight or already done makes it a
// no-op returning ErrNothingToClaim. Failures are not retried.
func (s *ClaimService) Claim(ctx context.Context, clientID, userID string) (session.State, error) {
	var doc models.Document
	st, err := s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if st.Identity == nil || st.Identity.UserID != userID {
			return ErrNothingToClaim
		}
		next, active, ok := st.BeginClaim()
		if !ok {
			return ErrNothingToClaim
		}
		*st, doc = next, active
		return nil
	})
	if err != nil {
		return st, err
	}

	saved, err := s.documents.Insert(ctx, userID, doc)
	if err != nil {
		s.log.Error("claim guest document", "err", err, "client_id", clientID, "user_id", userID)
		st, updErr := s.sessions.Update(ctx, clientID, func(st *session.State) error {
			*st = st.FailClaim()
			return nil
		})
		if updErr != nil {
			return st, updErr
		}
		return st, fmt.Errorf("%w: %w", ErrClaimFailed, err)
	}

	st, err = s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if st.Identity == nil || st.Identity.UserID != userID {
			return nil
		}
		*st = st.CompleteClaim(doc.ID, saved)
		return nil
	})
	if err != nil {
		return st, err
	}

	entry := models.UsageLog{
		UserID:      userID,
		Action:      models.UsageClaimGuestDocument,
		CreditsUsed: 1,
		DocumentID:  saved.ID,
	}
	if err := s.usage.Record(ctx, entry); err != nil {
		s.log.Error("record claim usage", "err", err, "user_id", userID, "document_id", saved.ID)
	}

	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		s.log.Error("refresh profile after claim", "err", err, "user_id", userID)
		return st, nil
	}
	if profile == nil {
		return st, nil
	}
	return s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if st.Identity != nil && st.Identity.UserID == userID {
			*st = st.WithProfile(profile)
		}
		return nil
	})
}
