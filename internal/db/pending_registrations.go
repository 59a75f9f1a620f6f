package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mrsh/internal/models"
)

const pendingColumns = `id, email, password_hash, verification_code, first_name, last_name, created_at`

type PendingRegistrationRepository struct {
	db *DB
}

func NewPendingRegistrationRepository(db *DB) *PendingRegistrationRepository {
	return &PendingRegistrationRepository{db: db}
}

// Create stores a pending registration. It fails with ErrDuplicate when the
// email already belongs to a user or to a pending registration created at or
// after notBefore. An older, expired registration for the email is replaced.
func (r *PendingRegistrationRepository) Create(ctx context.Context, p *models.PendingRegistration, notBefore time.Time) error {
	now := time.Now().UTC()

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM pending_registrations WHERE email = ? AND created_at < ?`,
			p.Email, notBefore.UTC(),
		)
		if err != nil {
			return fmt.Errorf("deleting expired pending registration: %w", err)
		}

		var taken bool
		err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, p.Email).Scan(&taken)
		if err != nil {
			return fmt.Errorf("checking registered email: %w", err)
		}
		if taken {
			return ErrDuplicate
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO pending_registrations (email, password_hash, verification_code, first_name, last_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.Email, p.PasswordHash, p.VerificationCode, p.FirstName, p.LastName, now,
		)
		if err != nil {
			if IsUniqueConstraintError(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("creating pending registration: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading pending registration id: %w", err)
		}
		p.ID = id
		p.CreatedAt = now
		return nil
	})
}

func (r *PendingRegistrationRepository) FindByEmail(ctx context.Context, email string) (*models.PendingRegistration, error) {
	return r.findOne(ctx, r.db, `SELECT `+pendingColumns+` FROM pending_registrations WHERE email = ?`, email)
}

func (r *PendingRegistrationRepository) FindByCode(ctx context.Context, code string) (*models.PendingRegistration, error) {
	return r.findOne(ctx, r.db, `SELECT `+pendingColumns+` FROM pending_registrations WHERE verification_code = ?`, code)
}

// Promote consumes the registration owning code and creates the user in the
// same transaction. Registrations created before notBefore are treated as
// missing.
func (r *PendingRegistrationRepository) Promote(ctx context.Context, code string, notBefore time.Time) (*models.User, error) {
	var user *models.User

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		p, err := r.findOne(ctx, tx, `SELECT `+pendingColumns+` FROM pending_registrations WHERE verification_code = ?`, code)
		if err != nil {
			return err
		}
		if p.CreatedAt.Before(notBefore) {
			return ErrNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_registrations WHERE id = ?`, p.ID); err != nil {
			return fmt.Errorf("deleting pending registration: %w", err)
		}

		now := time.Now().UTC()
		result, err := tx.ExecContext(ctx,
			`INSERT INTO users (first_name, last_name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.FirstName, p.LastName, p.Email, p.PasswordHash, now,
		)
		if err != nil {
			if IsUniqueConstraintError(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("creating user: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading user id: %w", err)
		}

		user = &models.User{
			ID:           id,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			Email:        p.Email,
			PasswordHash: p.PasswordHash,
			ScreenName:   models.DefaultScreenName(id),
			CreatedAt:    now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh replaces the verification code of the registration for email and
// restarts its expiry window.
func (r *PendingRegistrationRepository) Refresh(ctx context.Context, email, code string) (*models.PendingRegistration, error) {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE pending_registrations SET verification_code = ?, created_at = ? WHERE email = ?`,
		code, now, email,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("refreshing pending registration: %w", err)
	}
	if err := checkRowsAffected(result); err != nil {
		return nil, err
	}
	return r.FindByEmail(ctx, email)
}

func (r *PendingRegistrationRepository) DeleteByCode(ctx context.Context, code string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_registrations WHERE verification_code = ?`, code)
	if err != nil {
		return fmt.Errorf("deleting pending registration: %w", err)
	}
	return checkRowsAffected(result)
}

// DeleteExpired removes registrations created before cutoff.
func (r *PendingRegistrationRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_registrations WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("deleting expired pending registrations: %w", err)
	}
	return result.RowsAffected()
}

func (r *PendingRegistrationRepository) findOne(ctx context.Context, q querier, query string, args ...any) (*models.PendingRegistration, error) {
	var p models.PendingRegistration
	err := q.QueryRowContext(ctx, query, args...).Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.VerificationCode,
		&p.FirstName,
		&p.LastName,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying pending registration: %w", err)
	}
	return &p, nil
}
