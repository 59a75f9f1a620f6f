package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mrsh/internal/models"
)

type TokenRepository struct {
	db *DB
}

func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, userID int64, selector, validatorHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (user_id, selector, validator_hash, created_at) VALUES (?, ?, ?, ?)`,
		userID, selector, validatorHash, time.Now().UTC(),
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating token: %w", err)
	}
	return nil
}

// FindBySelector is an indexed point lookup on the token selector.
func (r *TokenRepository) FindBySelector(ctx context.Context, selector string) (*models.Token, error) {
	var t models.Token
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, selector, validator_hash, created_at FROM tokens WHERE selector = ?`,
		selector,
	).Scan(&t.ID, &t.UserID, &t.Selector, &t.ValidatorHash, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return &t, nil
}

func (r *TokenRepository) DeleteBySelector(ctx context.Context, selector string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE selector = ?`, selector)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return checkRowsAffected(result)
}
