package service

import (
	"context"

	"github.com/digkill/LetterDesk/internal/auth"
	"github.com/digkill/LetterDesk/internal/catalog"
	"github.com/digkill/LetterDesk/internal/models"
)

// Generator turns a template's field values into letter text.
type Generator interface {
	Generate(ctx context.Context, docType models.DocType, fields map[string]string) (string, error)
}

type Templates interface {
	Get(id string) (catalog.Template, bool)
	List() []catalog.Template
}

type DocumentStore interface {
	Insert(ctx context.Context, ownerID string, doc models.Document) (models.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
}

type ProfileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	AdjustCredits(ctx context.Context, id string, delta int) (int, error)
	SetPlan(ctx context.Context, id, plan string, credits int) error
}

type UsageRecorder interface {
	Record(ctx context.Context, entry models.UsageLog) error
}

type PlanStore interface {
	List(ctx context.Context) ([]models.Plan, error)
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	GetByCode(ctx context.Context, code string) (*models.Plan, error)
	Create(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Delete(ctx context.Context, id int64) error
}

type Authenticator interface {
	Subscribe(fn auth.Listener) func()
	Restore(ctx context.Context, clientID, token string) *auth.Session
	SignUp(ctx context.Context, email, password, plan string, credits int) error
	SignIn(ctx context.Context, clientID, email, password string) (*auth.Session, error)
	SignOut(ctx context.Context, clientID string) error
	Refresh(ctx context.Context, clientID, refreshToken string) (*auth.Session, error)
}

type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error)
}
