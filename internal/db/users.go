package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mrsh/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

const userColumns = `users.id, users.first_name, users.last_name, users.email, users.password_hash, users.screen_name, users.profile_picture, users.created_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *UserRepository) FindByScreenName(ctx context.Context, screenName string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE screen_name = ?`, screenName)
}

func (r *UserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email: %w", err)
	}
	return exists, nil
}

// UserUpdate holds the profile columns a caller may change. Nil fields are
// left as they are.
type UserUpdate struct {
	FirstName      *string
	LastName       *string
	ScreenName     *string
	ProfilePicture *string
}

func (u UserUpdate) empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.ScreenName == nil && u.ProfilePicture == nil
}

func (r *UserRepository) Update(ctx context.Context, id int64, u UserUpdate) error {
	if u.empty() {
		return nil
	}

	var sets []string
	var args []any
	if u.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, *u.FirstName)
	}
	if u.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, *u.LastName)
	}
	if u.ScreenName != nil {
		sets = append(sets, "screen_name = ?")
		args = append(args, *u.ScreenName)
	}
	if u.ProfilePicture != nil {
		sets = append(sets, "profile_picture = ?")
		args = append(args, *u.ProfilePicture)
	}
	args = append(args, id)

	result, err := r.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var screenName, picture sql.NullString

	if err := row.Scan(
		&u.ID,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&screenName,
		&picture,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}

	u.ProfilePicture = nullStringToPtr(picture)
	u.ScreenName = screenName.String
	if u.ScreenName == "" {
		u.ScreenName = models.DefaultScreenName(u.ID)
	}
	return &u, nil
}

// queryUsers runs a query selecting userColumns and returns public copies.
func queryUsers(ctx context.Context, q querier, query string, args ...any) ([]*models.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u.Public())
	}
	return users, rows.Err()
}
