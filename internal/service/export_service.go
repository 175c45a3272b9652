package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digkill/LetterDesk/internal/session"
)

type ExportResult struct {
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ExportService hands the active document out as a plain-text file. Only
// signed-in users may download.
type ExportService struct {
	log      *slog.Logger
	sessions *session.Manager
	uploader Uploader
}

// NewExportService returns text inline when uploader is nil.
func NewExportService(log *slog.Logger, sessions *session.Manager, uploader Uploader) *ExportService {
	return &ExportService{log: log, sessions: sessions, uploader: uploader}
}

func (s *ExportService) Export(ctx context.Context, clientID string) (ExportResult, error) {
	st, err := s.sessions.Get(ctx, clientID)
	if err != nil {
		return ExportResult{}, err
	}
	if !st.Authenticated() {
		return ExportResult{}, ErrLoginRequired
	}
	if st.Active == nil {
		return ExportResult{}, ErrNothingToExport
	}

	doc := st.Active
	result := ExportResult{
		Filename: exportFilename(string(doc.DocumentType), doc.CreatedAt.Format("2006-01-02")),
	}
	if s.uploader == nil {
		result.Text = doc.GeneratedText
		return result, nil
	}

	url, err := s.uploader.Upload(ctx, result.Filename, []byte(doc.GeneratedText), "text/plain; charset=utf-8")
	if err != nil {
		s.log.Error("export document", "err", err, "client_id", clientID, "document_id", doc.ID)
		return ExportResult{}, fmt.Errorf("export document: %w", err)
	}
	result.URL = url
	return result, nil
}

func exportFilename(docType, date string) string {
	name := strings.ReplaceAll(strings.ToLower(docType), " ", "-")
	return name + "-" + date + ".txt"
}
