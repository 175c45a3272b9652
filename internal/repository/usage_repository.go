package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/digkill/LetterDesk/internal/database"
	"github.com/digkill/LetterDesk/internal/models"
)

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Record appends the usage entry and debits its credits from the profile in
// the same transaction. The balance never goes below zero.
func (r *UsageRepository) Record(ctx context.Context, entry models.UsageLog) error {
	return database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		const insert = `
INSERT INTO usage_logs (user_id, action, credits_used, document_id)
VALUES (?, ?, ?, NULLIF(?, ''))`
		if _, err := tx.ExecContext(ctx, insert, entry.UserID, entry.Action, entry.CreditsUsed, entry.DocumentID); err != nil {
			return fmt.Errorf("insert usage log: %w", err)
		}
		const debit = `
UPDATE users_profile SET credits_remaining = GREATEST(credits_remaining - ?, 0), updated_at = NOW()
WHERE id = ?`
		if _, err := tx.ExecContext(ctx, debit, entry.CreditsUsed, entry.UserID); err != nil {
			return fmt.Errorf("debit usage credits: %w", err)
		}
		return nil
	})
}
