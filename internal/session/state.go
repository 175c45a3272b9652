package session

import (
	"time"

	"github.com/digkill/LetterDesk/internal/models"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// State is everything a workspace shows. Transitions are value methods that
// return the next state; callers never patch fields piecemeal.
type State struct {
	Identity   *Identity         `json:"identity,omitempty"`
	Profile    *models.Profile   `json:"profile,omitempty"`
	History    []models.Document `json:"history"`
	Template   string            `json:"template,omitempty"`
	Active     *models.Document  `json:"active,omitempty"`
	Guard      Guard             `json:"guard"`
	Generation Status            `json:"generation"`
	Claim      Status            `json:"claim"`
	Auth       Status            `json:"auth"`
	// PendingSince identifies the generation that owns the pending status.
	PendingSince time.Time `json:"pending_since,omitzero"`
	// Epoch changes whenever the displayed result is invalidated, so a
	// generation that finishes afterwards knows not to render.
	Epoch uint64 `json:"epoch"`
	Error string `json:"error,omitempty"`
}

func New() State {
	return State{
		History:    []models.Document{},
		Guard:      Guard{Mode: GuardArmed},
		Generation: StatusIdle,
		Claim:      StatusIdle,
		Auth:       StatusIdle,
	}
}

func (s State) Authenticated() bool {
	return s.Identity != nil
}

func (s State) SelectTemplate(id string) State {
	s.Template = id
	s.Active = nil
	s.Guard = s.Guard.Arm()
	s.Error = ""
	s.Epoch++
	if s.Claim != StatusPending {
		s.Claim = StatusIdle
	}
	return s
}

func (s State) ClearResult() State {
	s.Active = nil
	s.Guard = s.Guard.Arm()
	s.Error = ""
	s.Epoch++
	if s.Claim != StatusPending {
		s.Claim = StatusIdle
	}
	return s
}

func (s State) BeginGeneration(at time.Time) State {
	s.Generation = StatusPending
	s.PendingSince = at
	s.Error = ""
	return s
}

// GenerationBusy reports whether a generation started less than maxAge ago
// is still pending. An older pending status belongs to a call that never
// finished (a crash or a restart) and no longer blocks the workspace.
func (s State) GenerationBusy(now time.Time, maxAge time.Duration) bool {
	return s.Generation == StatusPending && now.Sub(s.PendingSince) < maxAge
}

// OwnsGeneration reports whether the pending status still belongs to the
// generation begun at started.
func (s State) OwnsGeneration(started time.Time) bool {
	return s.Generation == StatusPending && s.PendingSince.Equal(started)
}

func (s State) CompleteGeneration(doc models.Document, fp string) State {
	s.Active = &doc
	s.Guard = s.Guard.Record(fp)
	s.Generation = StatusSucceeded
	s.PendingSince = time.Time{}
	s.Claim = StatusIdle
	s.Error = ""
	return s
}

// SettleGeneration ends a generation whose result is no longer displayed.
func (s State) SettleGeneration() State {
	s.Generation = StatusIdle
	s.PendingSince = time.Time{}
	return s
}

func (s State) FailGeneration(msg string) State {
	s.Generation = StatusFailed
	s.PendingSince = time.Time{}
	s.Error = msg
	return s
}

func (s State) Reject(msg string) State {
	s.Error = msg
	return s
}

func (s State) WithProfile(p *models.Profile) State {
	if p != nil {
		cp := *p
		p = &cp
	}
	s.Profile = p
	return s
}

func (s State) WithCredits(credits int) State {
	if s.Profile == nil {
		return s
	}
	cp := *s.Profile
	cp.CreditsRemaining = credits
	s.Profile = &cp
	return s
}

func (s State) WithHistory(docs []models.Document) State {
	h := make([]models.Document, len(docs))
	copy(h, docs)
	s.History = h
	return s
}

// PrependHistory puts doc first and drops any older entry with the same id.
func (s State) PrependHistory(doc models.Document) State {
	h := make([]models.Document, 0, len(s.History)+1)
	h = append(h, doc)
	for _, d := range s.History {
		if d.ID != doc.ID {
			h = append(h, d)
		}
	}
	s.History = h
	return s
}

func (s State) WithIdentity(id *Identity) State {
	if id != nil {
		cp := *id
		id = &cp
	}
	s.Identity = id
	return s
}

// Reset drops every artifact of the previous identity. The auth and
// generation statuses survive: they describe operations still in flight.
func (s State) Reset() State {
	next := New()
	next.Auth = s.Auth
	next.Generation = s.Generation
	next.PendingSince = s.PendingSince
	next.Epoch = s.Epoch + 1
	return next
}

func (s State) CanClaim() bool {
	if s.Active == nil || !s.Active.IsTransient() {
		return false
	}
	return s.Claim != StatusPending && s.Claim != StatusSucceeded
}

// BeginClaim marks the active transient document as being claimed.
func (s State) BeginClaim() (State, models.Document, bool) {
	if !s.CanClaim() {
		return s, models.Document{}, false
	}
	doc := *s.Active
	s.Claim = StatusPending
	return s, doc, true
}

// CompleteClaim swaps the transient id for the persisted one wherever the
// document is displayed.
func (s State) CompleteClaim(transientID string, saved models.Document) State {
	if s.Active != nil && s.Active.ID == transientID {
		active := *s.Active
		active.ID = saved.ID
		active.OwnerID = saved.OwnerID
		s.Active = &active
	}
	s.Claim = StatusSucceeded
	return s.PrependHistory(saved)
}

func (s State) FailClaim() State {
	s.Claim = StatusFailed
	return s
}

func (s State) WithAuthStatus(st Status, msg string) State {
	s.Auth = st
	s.Error = msg
	return s
}

// Clone copies everything reachable through pointers and slices that
// transitions replace, so stored snapshots never alias live values.
func (s State) Clone() State {
	s = s.WithIdentity(s.Identity).WithProfile(s.Profile)
	if s.Active != nil {
		a := *s.Active
		s.Active = &a
	}
	if s.History != nil {
		s = s.WithHistory(s.History)
	}
	return s
}
