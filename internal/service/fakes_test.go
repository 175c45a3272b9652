package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/LetterDesk/internal/auth"
	"github.com/digkill/LetterDesk/internal/catalog"
	"github.com/digkill/LetterDesk/internal/config"
	"github.com/digkill/LetterDesk/internal/models"
	"github.com/digkill/LetterDesk/internal/repository"
	"github.com/digkill/LetterDesk/internal/session"
)

type fakeGenerator struct {
	mu        sync.Mutex
	text      string
	err       error
	panicWith any
	calls     int
	started   chan struct{}
	release   chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, _ models.DocType, _ map[string]string) (string, error) {
	g.mu.Lock()
	g.calls++
	text, err, started, release := g.text, g.err, g.started, g.release
	panicWith := g.panicWith
	g.panicWith = nil
	g.mu.Unlock()

	if panicWith != nil {
		panic(panicWith)
	}

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeDocs struct {
	mu        sync.Mutex
	byOwner   map[string][]models.Document
	insertErr error
	inserts   int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{byOwner: map[string][]models.Document{}}
}

func (d *fakeDocs) Insert(_ context.Context, ownerID string, doc models.Document) (models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.insertErr != nil {
		return models.Document{}, d.insertErr
	}
	d.inserts++
	doc.ID = uuid.NewString()
	doc.OwnerID = ownerID
	doc.CreatedAt = time.Now().Add(time.Duration(d.inserts) * time.Millisecond)
	d.byOwner[ownerID] = append(d.byOwner[ownerID], doc)
	return doc, nil
}

func (d *fakeDocs) ListByOwner(_ context.Context, ownerID string) ([]models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	docs := append([]models.Document{}, d.byOwner[ownerID]...)
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

func (d *fakeDocs) Count(ownerID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byOwner[ownerID])
}

// fakeProfiles mirrors the floored updates the SQL repositories run.
type fakeProfiles struct {
	mu        sync.Mutex
	byID      map[string]*models.Profile
	adjustErr error
	// seen records the balance every FindByID returned.
	seen []int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byID: map[string]*models.Profile{}}
}

func (p *fakeProfiles) FindByID(_ context.Context, id string) (*models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.byID[id]
	if !ok {
		return nil, nil
	}
	p.seen = append(p.seen, profile.CreditsRemaining)
	cp := *profile
	return &cp, nil
}

func (p *fakeProfiles) AdjustCredits(_ context.Context, id string, delta int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.adjustErr != nil {
		return 0, p.adjustErr
	}
	profile, ok := p.byID[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	profile.CreditsRemaining = max(profile.CreditsRemaining+delta, 0)
	return profile.CreditsRemaining, nil
}

func (p *fakeProfiles) SetPlan(_ context.Context, id, plan string, credits int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	profile, ok := p.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	profile.Plan = plan
	profile.CreditsRemaining = max(profile.CreditsRemaining+credits, 0)
	return nil
}

func (p *fakeProfiles) Credits(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byID[id].CreditsRemaining
}

func (p *fakeProfiles) Seen() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.seen...)
}

func (p *fakeProfiles) ResetSeen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = nil
}

func (p *fakeProfiles) SetCredits(id string, credits int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[id].CreditsRemaining = credits
}

type fakeUsage struct {
	mu       sync.Mutex
	entries  []models.UsageLog
	profiles *fakeProfiles
	err      error
}

func (u *fakeUsage) Record(ctx context.Context, entry models.UsageLog) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.entries = append(u.entries, entry)
	_, err := u.profiles.AdjustCredits(ctx, entry.UserID, -entry.CreditsUsed)
	return err
}

func (u *fakeUsage) Entries() []models.UsageLog {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]models.UsageLog{}, u.entries...)
}

type fakePlans struct {
	mu     sync.Mutex
	plans  []models.Plan
	nextID int64
}

func (f *fakePlans) List(context.Context) ([]models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Plan{}, f.plans...), nil
}

func (f *fakePlans) GetByID(_ context.Context, id int64) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plans {
		if p.ID == id {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePlans) GetByCode(_ context.Context, code string) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.plans {
		if p.Code == code {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePlans) Create(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cp := *plan
	cp.ID = f.nextID
	f.plans = append(f.plans, cp)
	return &cp, nil
}

func (f *fakePlans) Update(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.plans {
		if p.ID == plan.ID {
			f.plans[i] = *plan
			cp := *plan
			return &cp, nil
		}
	}
	return nil, errors.New("missing plan")
}

func (f *fakePlans) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.plans {
		if p.ID == id {
			f.plans = append(f.plans[:i], f.plans[i+1:]...)
			return nil
		}
	}
	return nil
}

// fakeAccounts creates the profile alongside the account like the SQL
// repository does.
type fakeAccounts struct {
	mu       sync.Mutex
	byEmail  map[string]*models.Account
	profiles *fakeProfiles
}

func (a *fakeAccounts) Create(_ context.Context, email, hash, plan string, credits int) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[email]; ok {
		return nil, repository.ErrEmailTaken
	}
	acc := &models.Account{ID: uuid.NewString(), Email: email, PasswordHash: hash}
	a.byEmail[email] = acc

	a.profiles.mu.Lock()
	a.profiles.byID[acc.ID] = &models.Profile{ID: acc.ID, Email: email, Plan: plan, CreditsRemaining: credits}
	a.profiles.mu.Unlock()
	return acc, nil
}

func (a *fakeAccounts) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byEmail[email], nil
}

type fakeUploader struct {
	filename string
	data     []byte
	err      error
}

func (u *fakeUploader) Upload(_ context.Context, filename string, data []byte, _ string) (string, error) {
	u.filename, u.data = filename, data
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/" + filename, nil
}

const (
	testClient   = "client-1"
	testEmail    = "asha@example.com"
	testPassword = "secret123"
	freeCredits  = 3
)

type testEnv struct {
	sessions   *session.Manager
	gen        *fakeGenerator
	docs       *fakeDocs
	profiles   *fakeProfiles
	usage      *fakeUsage
	plans      *fakePlans
	auth       *auth.Service
	generation *GenerationService
	claims     *ClaimService
	identity   *IdentityService
	export     *ExportService
	uploader   *fakeUploader
}

var testTemplates = catalog.New(append(catalog.Default().List(), catalog.Template{
	ID:     "simple",
	Type:   models.DocOfficeApology,
	Title:  "Simple",
	Fields: []catalog.Field{{Name: "name", Label: "Name", Type: catalog.FieldText, Required: true}},
}))

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.NewManager(session.NewMemoryStore())
	gen := &fakeGenerator{text: "Respected Sir,\nI request leave."}
	docs := newFakeDocs()
	profiles := newFakeProfiles()
	usage := &fakeUsage{profiles: profiles}
	plans := &fakePlans{}
	accounts := &fakeAccounts{byEmail: map[string]*models.Account{}, profiles: profiles}

	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: "test", AccessTTL: time.Hour})
	authSvc := auth.NewService(accounts, tokens, auth.NewPasswordHasher(bcrypt.MinCost))

	cfg := config.Config{DefaultPlan: "free", FreeCredits: freeCredits}
	planSvc := NewPlanService(cfg, plans)
	claims := NewClaimService(log, sessions, docs, profiles, usage)
	generation := NewGenerationService(log, sessions, testTemplates, gen, docs, profiles, claims, time.Second)
	identity := NewIdentityService(log, sessions, authSvc, claims, profiles, docs, planSvc)
	t.Cleanup(identity.Start())
	uploader := &fakeUploader{}

	return &testEnv{
		sessions:   sessions,
		gen:        gen,
		docs:       docs,
		profiles:   profiles,
		usage:      usage,
		plans:      plans,
		auth:       authSvc,
		generation: generation,
		claims:     claims,
		identity:   identity,
		export:     NewExportService(log, sessions, uploader),
		uploader:   uploader,
	}
}

func (e *testEnv) signUpAndIn(t *testing.T, clientID string) *auth.Session {
	t.Helper()
	ctx := context.Background()
	if _, err := e.identity.SignUp(ctx, clientID, testEmail, testPassword); err != nil && !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("sign up: %v", err)
	}
	sess, _, err := e.identity.SignIn(ctx, clientID, testEmail, testPassword)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	return sess
}

func (e *testEnv) state(t *testing.T, clientID string) session.State {
	t.Helper()
	st, err := e.sessions.Get(context.Background(), clientID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return st
}

var leaveInput = map[string]string{
	"name":      "Asha",
	"type":      "Sick",
	"startDate": "2025-01-01",
	"endDate":   "2025-01-02",
	"reason":    "fever",
}
