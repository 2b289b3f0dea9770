package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/database"
)

// PasswordResetRepository stores hashed single-use reset tokens.
type PasswordResetRepository struct {
	db *sqlx.DB
}

// NewPasswordResetRepository constructs a PasswordResetRepository.
func NewPasswordResetRepository(db *sqlx.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Create stores a reset and invalidates any earlier unused reset of the same principal.
func (r *PasswordResetRepository) Create(ctx context.Context, reset *models.PasswordReset) error {
	if reset.ID == "" {
		reset.ID = uuid.NewString()
	}
	reset.CreatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, "UPDATE password_resets SET used_at = $3 WHERE role = $1 AND principal_id = $2 AND used_at IS NULL",
		reset.Role, reset.PrincipalID, reset.CreatedAt); err != nil {
		return fmt.Errorf("invalidate previous password resets: %w", err)
	}
	const query = `INSERT INTO password_resets (id, role, principal_id, token_hash, expires_at, used_at, created_at)
VALUES (:id, :role, :principal_id, :token_hash, :expires_at, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reset); err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

// FindByHash returns the reset with the given token hash for role.
func (r *PasswordResetRepository) FindByHash(ctx context.Context, role models.UserRole, tokenHash string) (*models.PasswordReset, error) {
	var reset models.PasswordReset
	const query = `SELECT id, role, principal_id, token_hash, expires_at, used_at, created_at FROM password_resets WHERE role = $1 AND token_hash = $2`
	if err := r.db.GetContext(ctx, &reset, query, role, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find password reset: %w", err)
	}
	return &reset, nil
}

// Redeem consumes reset and stores passwordHash on its principal in one transaction.
// sql.ErrNoRows is returned if the reset was already used or the principal is gone.
func (r *PasswordResetRepository) Redeem(ctx context.Context, reset *models.PasswordReset, passwordHash string, usedAt time.Time) error {
	table, ok := principalTables[reset.Role]
	if !ok {
		return fmt.Errorf("redeem password reset: unknown role %q", reset.Role)
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE password_resets SET used_at = $2 WHERE id = $1 AND used_at IS NULL", reset.ID, usedAt)
		if err != nil {
			return fmt.Errorf("mark password reset used: %w", err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, "UPDATE "+table+" SET password_hash = $2, updated_at = $3 WHERE id = $1", reset.PrincipalID, passwordHash, usedAt)
		if err != nil {
			return fmt.Errorf("update %s password: %w", table, err)
		}
		return expectAffected(res)
	})
}

var principalTables = map[models.UserRole]string{
	models.RoleAdmin:   "admins",
	models.RoleTeacher: "teachers",
	models.RoleStudent: "students",
}
