package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/digkill/LetterDesk/internal/catalog"
)

var (
	ErrQuotaExhausted      = errors.New("credits exhausted")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrRateLimited         = errors.New("generation rate limited")
	ErrBusy                = errors.New("operation already in progress")
	ErrUnknownTemplate     = errors.New("unknown template")
	ErrInvalidInput        = errors.New("invalid input")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrLoginRequired       = errors.New("login required")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrNothingToExport     = errors.New("nothing to export")
	ErrClaimFailed         = errors.New("claim failed")
	ErrNotFound            = errors.New("not found")
)

const (
	MsgQuotaExhausted   = "You've used your free drafts. Please top up your account to continue."
	MsgDuplicate        = "This document is already generated with these details."
	MsgGenerationFailed = "We couldn't generate your document. Don't worry, no credits were used. Please try again."
	MsgRateLimited      = "Server is busy. Please try again in 1 minute."
	MsgBusy             = "Please wait for the current request to finish."
	MsgUnknownTemplate  = "This document type is not available."
	MsgLoginRequired    = "Please sign in to download your document."
	MsgNothingToExport  = "Generate a document first."
)

// AuthError carries the identity provider's message to the user unchanged.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return e.Cause.Error()
}

func (e *AuthError) Unwrap() []error {
	return []error{ErrAuthFailed, e.Cause}
}

// Message returns the text shown to the user for err.
func Message(err error) string {
	var authErr *AuthError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExhausted):
		return MsgQuotaExhausted
	case errors.Is(err, ErrDuplicateSubmission):
		return MsgDuplicate
	case errors.Is(err, ErrRateLimited):
		return MsgRateLimited
	case errors.Is(err, ErrGenerationFailed):
		return MsgGenerationFailed
	case errors.Is(err, ErrBusy):
		return MsgBusy
	case errors.Is(err, ErrUnknownTemplate):
		return MsgUnknownTemplate
	case errors.Is(err, ErrLoginRequired):
		return MsgLoginRequired
	case errors.Is(err, ErrNothingToExport):
		return MsgNothingToExport
	case errors.As(err, &authErr):
		return authErr.Error()
	case errors.Is(err, ErrInvalidInput):
		return invalidInputMessage(err)
	default:
		return "Something went wrong. Please try again."
	}
}

func invalidInputMessage(err error) string {
	if errors.Is(err, catalog.ErrFieldTooLong) {
		return fmt.Sprintf("Please keep each field to %d characters or fewer.", catalog.MaxFieldLength)
	}
	if !errors.Is(err, catalog.ErrMissingField) {
		return "Please check the form and try again."
	}
	_, fields, found := strings.Cut(err.Error(), catalog.ErrMissingField.Error()+": ")
	if !found {
		return "Please fill in all required fields."
	}
	return "Please fill in all required fields: " + fields + "."
}
