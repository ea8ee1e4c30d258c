package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stock-analyst/models"
)

// ErrDuplicateEmail is returned when registering an email that already has an account
var ErrDuplicateEmail = errors.New("email already registered")

// CreateUser inserts a new account
func (r *Repository) CreateUser(ctx context.Context, user *models.User) (err error) {
	done := observe("insert", "users")
	defer func() { done(err) }()

	err = r.pool.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, user.ID, user.Name, user.Email, user.PasswordHash).Scan(&user.CreatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, user.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the account registered with email, or ErrNotFound
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = $1`, email)
}

// GetUserByID returns the account with id, or ErrNotFound
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (_ *models.User, err error) {
	done := observe("select", "users")
	defer func() {
		if errors.Is(err, ErrNotFound) {
			done(nil)
			return
		}
		done(err)
	}()

	var user models.User
	err = r.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

// DeleteUser removes an account and, by cascade, its query runs
func (r *Repository) DeleteUser(ctx context.Context, id uuid.UUID) error {
	done := observe("delete", "users")
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	done(err)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
