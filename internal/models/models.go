package models

import "time"

type DocType string

const (
	DocResignation     DocType = "Resignation Letter"
	DocBankComplaint   DocType = "Bank Complaint"
	DocPoliceComplaint DocType = "Police Complaint"
	DocCollegeApp      DocType = "College Application"
	DocOfficeApology   DocType = "Office Apology"
	DocLeaveLetter     DocType = "Leave Letter"
)

type UsageAction string

const (
	UsageClaimGuestDocument UsageAction = "claim_guest_document"
)

// Document is a generated letter. ID is transient until the document is
// persisted, see NewTransientID.
type Document struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner_id,omitempty"`
	DocumentType  DocType           `json:"document_type"`
	GeneratedText string            `json:"generated_text"`
	InputData     map[string]string `json:"input_data,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (d Document) IsTransient() bool {
	return IsTransientID(d.ID)
}

type Profile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Plan             string    `json:"plan"`
	CreditsRemaining int       `json:"credits_remaining"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type UsageLog struct {
	ID          int64
	UserID      string
	Action      UsageAction
	CreditsUsed int
	DocumentID  string
	CreatedAt   time.Time
}

type Plan struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Credits     int       `json:"credits"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
