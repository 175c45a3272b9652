// Package catalog holds the static letter templates offered to users.
package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/digkill/LetterDesk/internal/models"
)

// MaxFieldLength caps a single submitted value, in characters.
const MaxFieldLength = 2000

var (
	ErrMissingField = errors.New("required field missing")
	ErrFieldTooLong = errors.New("field too long")
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldDate     FieldType = "date"
)

type Field struct {
	Name        string    `json:"name"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Placeholder string    `json:"placeholder,omitempty"`
	Required    bool      `json:"required"`
}

type Template struct {
	ID          string         `json:"id"`
	Type        models.DocType `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Fields      []Field        `json:"fields"`
}

var templates = []Template{
	{
		ID:          "resignation",
		Type:        models.DocResignation,
		Title:       "Professional Resignation",
		Description: "A resignation letter that keeps your reputation safe.",
		Fields: []Field{
			{Name: "name", Label: "Your Full Name", Type: FieldText, Required: true},
			{Name: "company", Label: "Company Name", Type: FieldText, Required: true},
			{Name: "title", Label: "Your Designation", Type: FieldText, Required: true},
			{Name: "lastDay", Label: "Your Last Working Day", Type: FieldDate, Required: true},
			{Name: "reason", Label: "Reason for leaving (Optional)", Type: FieldTextarea},
		},
	},
	{
		ID:          "bank",
		Type:        models.DocBankComplaint,
		Title:       "Bank Communication",
		Description: "Correct standard formats to resolve banking issues.",
		Fields: []Field{
			{Name: "name", Label: "Account Holder Name", Type: FieldText, Required: true},
			{Name: "bankName", Label: "Bank & Branch Name", Type: FieldText, Required: true},
			{Name: "accNumber", Label: "Account or Card Number", Type: FieldText, Required: true},
			{Name: "issue", Label: "Describe your problem clearly", Type: FieldTextarea, Required: true},
		},
	},
	{
		ID:          "police",
		Type:        models.DocPoliceComplaint,
		Title:       "Police Intimation",
		Description: "Clear, formal drafts for reporting incidents.",
		Fields: []Field{
			{Name: "name", Label: "Your Full Name", Type: FieldText, Required: true},
			{Name: "address", Label: "Your Address", Type: FieldTextarea, Required: true},
			{Name: "incidentType", Label: "What was lost or what happened?", Type: FieldText, Required: true},
			{Name: "date", Label: "Date and Time of incident", Type: FieldDate, Required: true},
			{Name: "description", Label: "Incident details", Type: FieldTextarea, Required: true},
		},
	},
	{
		ID:          "college",
		Type:        models.DocCollegeApp,
		Title:       "Academic Application",
		Description: "Professional applications that get approved.",
		Fields: []Field{
			{Name: "name", Label: "Student Name", Type: FieldText, Required: true},
			{Name: "course", Label: "Course & Roll Number", Type: FieldText, Required: true},
			{Name: "previousCollege", Label: "College/School Name", Type: FieldText, Required: true},
			{Name: "achievement", Label: "Reason or Achievement", Type: FieldTextarea},
		},
	},
	{
		ID:          "apology",
		Type:        models.DocOfficeApology,
		Title:       "Workplace Apology",
		Description: "A respectful way to address workplace mistakes.",
		Fields: []Field{
			{Name: "name", Label: "Your Name", Type: FieldText, Required: true},
			{Name: "manager", Label: "Manager Name/Role", Type: FieldText, Required: true},
			{Name: "mistake", Label: "What happened?", Type: FieldTextarea, Required: true},
			{Name: "action", Label: "How will you fix it?", Type: FieldTextarea},
		},
	},
	{
		ID:          "leave",
		Type:        models.DocLeaveLetter,
		Title:       "Leave Application",
		Description: "Polite requests that managers can't say no to.",
		Fields: []Field{
			{Name: "name", Label: "Your Name", Type: FieldText, Required: true},
			{Name: "type", Label: "Type (Sick/Family/Vacation)", Type: FieldText, Required: true},
			{Name: "startDate", Label: "Leave Start Date", Type: FieldDate, Required: true},
			{Name: "endDate", Label: "Leave End Date", Type: FieldDate, Required: true},
			{Name: "reason", Label: "Reason for Leave", Type: FieldTextarea, Required: true},
		},
	},
}

// Catalog is a read-only view over the templates. The zero value is not usable,
// use Default.
type Catalog struct {
	ordered []Template
	byID    map[string]Template
}

func Default() *Catalog {
	return New(templates)
}

func New(list []Template) *Catalog {
	c := &Catalog{
		ordered: make([]Template, len(list)),
		byID:    make(map[string]Template, len(list)),
	}
	copy(c.ordered, list)
	for _, t := range list {
		c.byID[t.ID] = t
	}
	return c
}

func (c *Catalog) List() []Template {
	out := make([]Template, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func (c *Catalog) Get(id string) (Template, bool) {
	t, ok := c.byID[id]
	return t, ok
}

// Normalize keeps only the template's fields, in a fresh map. Absent optional
// fields become empty strings so equal submissions always compare equal.
func (t Template) Normalize(values map[string]string) map[string]string {
	out := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		out[f.Name] = values[f.Name]
	}
	return out
}

func (t Template) Validate(values map[string]string) error {
	var missing []string
	for _, f := range t.Fields {
		if f.Required && strings.TrimSpace(values[f.Name]) == "" {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	var long []string
	for _, f := range t.Fields {
		if utf8.RuneCountInString(values[f.Name]) > MaxFieldLength {
			long = append(long, f.Name)
		}
	}
	if len(long) > 0 {
		return fmt.Errorf("%w: %s", ErrFieldTooLong, strings.Join(long, ", "))
	}
	return nil
}
