package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/digkill/LetterDesk/internal/database"
	"github.com/digkill/LetterDesk/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

const mysqlDuplicateEntry = 1062

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create stores the account and seeds its profile in one transaction.
func (r *AccountRepository) Create(ctx context.Context, email, passwordHash, plan string, credits int) (*models.Account, error) {
	account := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
	}
	err := database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		const insertAccount = `INSERT INTO accounts (id, email, password_hash) VALUES (?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insertAccount, account.ID, account.Email, account.PasswordHash); err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
				return ErrEmailTaken
			}
			return fmt.Errorf("insert account: %w", err)
		}
		const insertProfile = `INSERT INTO users_profile (id, email, plan, credits_remaining) VALUES (?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insertProfile, account.ID, account.Email, plan, credits); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?`
	row := r.db.QueryRowContext(ctx, query, email)
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
