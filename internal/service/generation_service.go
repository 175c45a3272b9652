package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/LetterDesk/internal/llm"
	"github.com/digkill/LetterDesk/internal/models"
	"github.com/digkill/LetterDesk/internal/session"
)

const (
	defaultGenerationTimeout = 90 * time.Second
	// pendingGrace covers storing and billing after the generator returns.
	pendingGrace = 30 * time.Second
)

type GenerationService struct {
	log       *slog.Logger
	sessions  *session.Manager
	templates Templates
	generator Generator
	documents DocumentStore
	profiles  ProfileStore
	claims    *ClaimService
	timeout   time.Duration
	now       func() time.Time
}

func NewGenerationService(log *slog.Logger, sessions *session.Manager, templates Templates, generator Generator, documents DocumentStore, profiles ProfileStore, claims *ClaimService, timeout time.Duration) *GenerationService {
	if timeout <= 0 {
		timeout = defaultGenerationTimeout
	}
	return &GenerationService{
		log:       log,
		sessions:  sessions,
		templates: templates,
		generator: generator,
		documents: documents,
		profiles:  profiles,
		claims:    claims,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Generate drafts a letter from templateID and the submitted values for the
// client's workspace and returns the workspace afterwards.
//
// Every rejection is decided before the generator is called. An
// authenticated user is charged one credit, and only once the document is
// stored. The generator call is not cancelled with the request: once started
// its result is always stored and billed, even if the user has moved on.
func (s *GenerationService) Generate(ctx context.Context, clientID, templateID string, values map[string]string) (session.State, error) {
	tpl, ok := s.templates.Get(templateID)
	if !ok {
		st, err := s.sessions.Get(ctx, clientID)
		if err != nil {
			return session.State{}, err
		}
		return st, ErrUnknownTemplate
	}

	var job generationJob
	started := s.now().UTC()
	st, err := s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if st.GenerationBusy(started, s.timeout+pendingGrace) {
			return ErrBusy
		}
		if st.Template != tpl.ID {
			*st = st.SelectTemplate(tpl.ID)
		}
		if st.Authenticated() && st.Profile != nil && st.Profile.CreditsRemaining <= 0 {
			*st = st.Reject(MsgQuotaExhausted)
			return ErrQuotaExhausted
		}
		fields := tpl.Normalize(values)
		fp := session.Fingerprint(fields)
		if st.Guard.Rejects(fp) {
			*st = st.Reject(MsgDuplicate)
			return ErrDuplicateSubmission
		}
		if err := tpl.Validate(fields); err != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidInput, err)
			*st = st.Reject(Message(err))
			return err
		}
		*st = st.BeginGeneration(started)
		job = generationJob{
			docType: tpl.Type,
			fields:  fields,
			fp:      fp,
			epoch:   st.Epoch,
			started: started,
		}
		if st.Identity != nil {
			id := *st.Identity
			job.identity = &id
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	return s.run(context.WithoutCancel(ctx), clientID, job)
}

// generationJob is what a started generation needs once the workspace lock
// is released.
type generationJob struct {
	docType  models.DocType
	fields   map[string]string
	fp       string
	epoch    uint64
	started  time.Time
	identity *session.Identity
}

// run finishes a generation begun in Generate. Every path, a panic included,
// leaves the pending status behind.
func (s *GenerationService) run(ctx context.Context, clientID string, job generationJob) (st session.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			st, err = s.fail(ctx, clientID, job, fmt.Errorf("panic: %v", r))
		}
	}()

	text, err := s.callGenerator(ctx, job.docType, job.fields)
	if err != nil {
		return s.fail(ctx, clientID, job, err)
	}

	doc := models.Document{
		ID:            models.NewTransientID(),
		DocumentType:  job.docType,
		GeneratedText: text,
		InputData:     job.fields,
		CreatedAt:     s.now().UTC(),
	}

	var (
		persisted bool
		credits   *int
	)
	if job.identity != nil {
		doc, persisted, credits = s.persist(ctx, job.identity.UserID, doc)
	}

	var claimFor string
	st, err = s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if persisted && st.Identity != nil && st.Identity.UserID == job.identity.UserID {
			*st = st.PrependHistory(doc)
			if credits != nil {
				*st = st.WithCredits(*credits)
			}
		}
		if !st.OwnsGeneration(job.started) {
			return nil
		}
		if st.Epoch != job.epoch {
			*st = st.SettleGeneration()
			return nil
		}
		*st = st.CompleteGeneration(doc, job.fp)
		if job.identity == nil && st.Identity != nil {
			claimFor = st.Identity.UserID
		}
		return nil
	})
	if err != nil {
		return st, err
	}

	if claimFor != "" {
		claimed, err := s.claims.Claim(ctx, clientID, claimFor)
		if err != nil {
			if !errors.Is(err, ErrNothingToClaim) {
				s.log.Error("claim late guest document", "err", err, "client_id", clientID, "user_id", claimFor)
			}
			return s.sessions.Get(ctx, clientID)
		}
		return claimed, nil
	}
	return st, nil
}

func (s *GenerationService) callGenerator(ctx context.Context, docType models.DocType, fields map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.generator.Generate(ctx, docType, fields)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (s *GenerationService) fail(ctx context.Context, clientID string, job generationJob, cause error) (session.State, error) {
	failure := ErrGenerationFailed
	if errors.Is(cause, llm.ErrRateLimited) {
		failure = ErrRateLimited
	}
	s.log.Error("generate document", "err", cause, "client_id", clientID)

	st, err := s.sessions.Update(ctx, clientID, func(st *session.State) error {
		if !st.OwnsGeneration(job.started) {
			return nil
		}
		if st.Epoch != job.epoch {
			*st = st.SettleGeneration()
			return nil
		}
		*st = st.FailGeneration(Message(failure))
		return nil
	})
	if err != nil {
		return st, err
	}
	return st, fmt.Errorf("%w: %w", failure, cause)
}

// persist stores the document and then debits one credit. Failures are logged
// and leave the document transient or the balance unchanged; the user still
// gets the text.
func (s *GenerationService) persist(ctx context.Context, userID string, doc models.Document) (models.Document, bool, *int) {
	saved, err := s.documents.Insert(ctx, userID, doc)
	if err != nil {
		s.log.Error("persist document", "err", err, "user_id", userID)
		return doc, false, nil
	}
	balance, err := s.profiles.AdjustCredits(ctx, userID, -1)
	if err != nil {
		s.log.Error("debit credit", "err", err, "user_id", userID, "document_id", saved.ID)
		return saved, true, nil
	}
	return saved, true, &balance
}

// SelectTemplate switches the workspace to another template.
func (s *GenerationService) SelectTemplate(ctx context.Context, clientID, templateID string) (session.State, error) {
	if _, ok := s.templates.Get(templateID); !ok {
		st, err := s.sessions.Get(ctx, clientID)
		if err != nil {
			return session.State{}, err
		}
		return st, ErrUnknownTemplate
	}
	return s.sessions.Update(ctx, clientID, func(st *session.State) error {
		*st = st.SelectTemplate(templateID)
		return nil
	})
}

// ClearResult drops the displayed document so the same input can be
// generated again.
func (s *GenerationService) ClearResult(ctx context.Context, clientID string) (session.State, error) {
	return s.sessions.Update(ctx, clientID, func(st *session.State) error {
		*st = st.ClearResult()
		return nil
	})
}
