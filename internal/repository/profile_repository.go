package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/LetterDesk/internal/database"
	"github.com/digkill/LetterDesk/internal/models"
)

type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	const query = `
SELECT id, email, plan, credits_remaining, created_at, updated_at
FROM users_profile WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Profile
	if err := row.Scan(&p.ID, &p.Email, &p.Plan, &p.CreditsRemaining, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

// AdjustCredits adds delta to the balance, flooring at zero, and returns the
// balance after the update.
func (r *ProfileRepository) AdjustCredits(ctx context.Context, id string, delta int) (int, error) {
	var credits int
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		const update = `UPDATE users_profile SET credits_remaining = GREATEST(credits_remaining + ?, 0), updated_at = NOW() WHERE id = ?`
		res, err := tx.ExecContext(ctx, update, delta, id)
		if err != nil {
			return fmt.Errorf("update credits: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("credits rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("profile %s: %w", id, ErrNotFound)
		}
		const query = `SELECT credits_remaining FROM users_profile WHERE id = ?`
		if err := tx.QueryRowContext(ctx, query, id).Scan(&credits); err != nil {
			return fmt.Errorf("read credits: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return credits, nil
}

// SetPlan switches the profile to plan and adds its credits to the balance.
func (r *ProfileRepository) SetPlan(ctx context.Context, id, plan string, credits int) error {
	const query = `
UPDATE users_profile SET plan = ?, credits_remaining = GREATEST(credits_remaining + ?, 0), updated_at = NOW()
WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, plan, credits, id)
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("plan rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}
