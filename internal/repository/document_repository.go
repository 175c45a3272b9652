package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/LetterDesk/internal/models"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Insert persists doc for ownerID under a fresh permanent id and returns the
// stored copy.
func (r *DocumentRepository) Insert(ctx context.Context, ownerID string, doc models.Document) (models.Document, error) {
	input, err := json.Marshal(doc.InputData)
	if err != nil {
		return models.Document{}, fmt.Errorf("encode input data: %w", err)
	}
	saved := doc
	saved.ID = uuid.NewString()
	saved.OwnerID = ownerID
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO documents (id, user_id, document_type, generated_text, input_data, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, saved.ID, ownerID, saved.DocumentType, saved.GeneratedText, input, saved.CreatedAt); err != nil {
		return models.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return saved, nil
}

// ListByOwner returns the owner's documents newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	const query = `
SELECT id, user_id, document_type, generated_text, input_data, created_at
FROM documents
WHERE user_id = ?
ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		var d models.Document
		var input []byte
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.DocumentType, &d.GeneratedText, &input, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if len(input) > 0 {
			if err := json.Unmarshal(input, &d.InputData); err != nil {
				return nil, fmt.Errorf("decode input data: %w", err)
			}
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
